package bids

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// NotAvailable marks a missing value in participants.tsv.
const NotAvailable = "n/a"

var participantsHeader = []string{"participant_id", "ses_id", "source_id", "age", "sex"}

// Participant is one row of participants.tsv.
type Participant struct {
	ParticipantID string
	SessionID     string
	SourceID      string
	Age           string
	Sex           string
}

func (p Participant) record() []string {
	orNA := func(s string) string {
		if s == "" {
			return NotAvailable
		}
		return s
	}
	return []string{p.ParticipantID, p.SessionID, orNA(p.SourceID), orNA(p.Age), orNA(p.Sex)}
}

// ValidSex reports if s is one of the accepted values M, F and n/a.
func ValidSex(s string) bool {
	return s == "M" || s == "F" || s == NotAvailable
}

// ReadParticipants returns all rows of a participants.tsv file. A missing
// file has no rows.
func ReadParticipants(path string) ([]Participant, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.Comma = '\t'
	r.FieldsPerRecord = -1
	var rows []Participant
	header := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		if header {
			header = false
			continue
		}
		for len(rec) < len(participantsHeader) {
			rec = append(rec, NotAvailable)
		}
		rows = append(rows, Participant{
			ParticipantID: rec[0],
			SessionID:     rec[1],
			SourceID:      rec[2],
			Age:           rec[3],
			Sex:           rec[4],
		})
	}
	return rows, nil
}

// UpsertParticipant writes p into the registry. A row with the same
// participant and session is replaced, otherwise p is appended. The header
// is written when the file is new; created reports that case.
func UpsertParticipant(path string, p Participant) (created bool, err error) {
	rows, err := ReadParticipants(path)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		created = true
	}
	replaced := false
	for i := range rows {
		if rows[i].ParticipantID == p.ParticipantID && rows[i].SessionID == p.SessionID {
			rows[i] = p
			replaced = true
		}
	}
	if !replaced {
		rows = append(rows, p)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".participants-*.tsv")
	if err != nil {
		return false, err
	}
	defer os.Remove(tmp.Name())
	w := csv.NewWriter(tmp)
	w.Comma = '\t'
	if err := w.Write(participantsHeader); err != nil {
		tmp.Close()
		return false, err
	}
	for _, row := range rows {
		if err := w.Write(row.record()); err != nil {
			tmp.Close()
			return false, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return false, err
	}
	if err := tmp.Close(); err != nil {
		return false, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	return created, nil
}
