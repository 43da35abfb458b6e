package dicomscan

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

//go:embed rules.json
var classifyRules []byte

// Class is a series type with the rules a series has to pass for it.
type Class struct {
	Type        string `json:"type"`
	Id          string `json:"id"`
	Description string `json:"description"`
	Rules       []Rule `json:"rules"`
}

// Rule tests one tag value. A rule without a tag refers to the rules of the
// class with Id == Rule instead.
type Rule struct {
	// Tag is a keyword like "SeriesDescription" or a group/element pair.
	Tag []string `json:"tag"`
	// Value is a string or a list of numbers.
	Value     any     `json:"value"`
	Operator  string  `json:"operator"`
	Negate    string  `json:"negate"`
	Tolerance float64 `json:"tolerance"`
	Rule      string  `json:"rule"`
}

var classes = mustClasses(classifyRules)

func mustClasses(data []byte) []Class {
	var cs []Class
	if err := json.Unmarshal(data, &cs); err != nil {
		panic(fmt.Sprintf("dicomscan: bad classification rules: %v", err))
	}
	return cs
}

// lookupFunc returns the value of a tag as text, or false if the tag is not
// in the data set.
type lookupFunc func(t tag.Tag) (string, bool)

// Classify lists the type of every class whose rules the data set passes,
// e.g. [T2 sagittal].
func Classify(dataset dicom.Dataset) []string {
	return classify(classes, func(t tag.Tag) (string, bool) {
		el, err := dataset.FindElementByTag(t)
		if err != nil {
			return "", false
		}
		return valueString(el.Value), true
	})
}

func valueString(v dicom.Value) string {
	switch v.ValueType() {
	case dicom.Strings:
		return strings.Join(v.GetValue().([]string), ", ")
	case dicom.Ints:
		var s []string
		for _, i := range v.GetValue().([]int) {
			s = append(s, strconv.Itoa(i))
		}
		return strings.Join(s, ", ")
	case dicom.Floats:
		var s []string
		for _, f := range v.GetValue().([]float64) {
			s = append(s, strconv.FormatFloat(f, 'f', -1, 64))
		}
		return strings.Join(s, ", ")
	}
	return ""
}

func classify(cs []Class, lookup lookupFunc) []string {
	var types []string
	for _, c := range cs {
		if evalRules(cs, c.Rules, lookup, 0) {
			types = append(types, c.Type)
		}
	}
	return types
}

// parseTag accepts a keyword or a hex group/element pair.
func parseTag(names []string) (tag.Tag, bool) {
	switch len(names) {
	case 1:
		info, err := tag.FindByName(names[0])
		if err != nil {
			return tag.Tag{}, false
		}
		return info.Tag, true
	case 2:
		g, err1 := strconv.ParseUint(names[0], 0, 16)
		e, err2 := strconv.ParseUint(names[1], 0, 16)
		if err1 != nil || err2 != nil {
			return tag.Tag{}, false
		}
		return tag.Tag{Group: uint16(g), Element: uint16(e)}, true
	}
	return tag.Tag{}, false
}

func evalRules(cs []Class, rules []Rule, lookup lookupFunc, depth int) bool {
	if depth > len(cs) {
		return false
	}
	for _, r := range rules {
		var ok bool
		if len(r.Tag) == 0 {
			ok = false
			for _, c := range cs {
				if c.Id != "" && c.Id == r.Rule {
					ok = evalRules(cs, c.Rules, lookup, depth+1)
					break
				}
			}
		} else {
			t, found := parseTag(r.Tag)
			value := ""
			if found {
				value, _ = lookup(t)
			}
			ok = applyOperator(r, value)
		}
		if r.Negate == "yes" {
			ok = !ok
		}
		if !ok {
			return false
		}
	}
	return true
}

func numbers(s string) []float64 {
	var out []float64
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' || r == '\\' }) {
		if v, err := strconv.ParseFloat(f, 64); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// applyOperator reports if value passes r, without negation.
func applyOperator(r Rule, value string) bool {
	var want string
	var wantNumbers []float64
	switch v := r.Value.(type) {
	case string:
		want = v
	case float64:
		wantNumbers = []float64{v}
		want = strconv.FormatFloat(v, 'f', -1, 64)
	case []any:
		for _, x := range v {
			if f, ok := x.(float64); ok {
				wantNumbers = append(wantNumbers, f)
			}
		}
	}

	switch r.Operator {
	case "contains":
		return strings.Contains(value, want)
	case "==":
		return value == want
	case "":
		re, err := regexp.Compile(want)
		if err != nil {
			return false
		}
		return re.MatchString(value)
	case "<", ">":
		a, err1 := strconv.ParseFloat(strings.TrimSpace(value), 64)
		b, err2 := strconv.ParseFloat(want, 64)
		if err1 != nil || err2 != nil {
			return false
		}
		if r.Operator == "<" {
			return a < b
		}
		return a > b
	case "approx":
		got := numbers(value)
		if len(got) == 0 || len(got) != len(wantNumbers) {
			return false
		}
		tol := r.Tolerance
		if tol == 0 {
			tol = 1e-3
		}
		for i := range got {
			if math.Abs(got[i]-wantNumbers[i]) > tol {
				return false
			}
		}
		return true
	}
	return false
}
