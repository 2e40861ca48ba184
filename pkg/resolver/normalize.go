package resolver

import (
	"fmt"

	"github.com/ritzau/relgraph/pkg/logging"
	"github.com/tidwall/gjson"
)

// envelopeFields are tried in order when the body is an object.
var envelopeFields = []string{"results", "items", "data", "names"}

var (
	titleFields       = []string{"title", "name", "label"}
	idFields          = []string{"id", "key"}
	descriptionFields = []string{"description", "summary", "snippet"}
)

// Candidate is one entity suggestion for a typed query.
type Candidate struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Normalize turns an entity search body into candidates. The body may be a bare
// array or an object holding the array under one of several field names; elements
// may be bare strings or objects. Unknown layouts yield an empty slice. Only a body
// that is not JSON at all is an error.
func Normalize(body []byte) ([]Candidate, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("entity search body is not JSON")
	}

	root := gjson.ParseBytes(body)
	var list gjson.Result
	switch {
	case root.IsArray():
		list = root
	case root.IsObject():
		for _, field := range envelopeFields {
			if v := root.Get(field); truthy(v) {
				list = v
				break
			}
		}
	}

	if !list.IsArray() {
		logging.Warn("unexpected entity search response shape", "body", truncate(root.Raw, 200))
		return []Candidate{}, nil
	}

	out := make([]Candidate, 0, len(list.Array()))
	list.ForEach(func(_, item gjson.Result) bool {
		if c, ok := candidateFrom(item); ok {
			out = append(out, c)
		} else {
			logging.Debug("skipping entity search item", "item", truncate(item.Raw, 120))
		}
		return true
	})
	return out, nil
}

// truthy reports whether an envelope field holds a usable value. Empty strings,
// false and zero count as absent.
func truthy(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null, gjson.False:
		return false
	case gjson.String:
		return v.Str != ""
	case gjson.Number:
		return v.Num != 0
	default:
		return v.Exists()
	}
}

func candidateFrom(item gjson.Result) (Candidate, bool) {
	switch item.Type {
	case gjson.String, gjson.Number:
		s := item.String()
		if s == "" {
			return Candidate{}, false
		}
		return Candidate{ID: s, Title: s}, true
	case gjson.JSON:
		if !item.IsObject() {
			return Candidate{}, false
		}
		title := firstString(item, titleFields)
		id := firstString(item, idFields)
		if title == "" {
			title = id
		}
		if id == "" {
			id = title
		}
		if title == "" {
			return Candidate{}, false
		}
		return Candidate{
			ID:          id,
			Title:       title,
			Description: firstString(item, descriptionFields),
		}, true
	}
	return Candidate{}, false
}

func firstString(obj gjson.Result, fields []string) string {
	for _, f := range fields {
		v := obj.Get(f)
		if (v.Type == gjson.String || v.Type == gjson.Number) && v.String() != "" {
			return v.String()
		}
	}
	return ""
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
