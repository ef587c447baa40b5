package extract

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ysmood/gson"

	"github.com/use-agent/harvest/engine"
	"github.com/use-agent/harvest/models"
)

// Sections is a key path into a JSON document. Elements are map keys
// (string) or array indexes (int). Keys may contain dots.
type Sections []any

func (s Sections) String() string {
	parts := make([]string, len(s))
	for i, p := range s {
		parts[i] = fmt.Sprint(p)
	}
	return strings.Join(parts, " > ")
}

// lookup descends sections from node. A nil value counts as missing.
func lookup(node gson.JSON, sections []any) (gson.JSON, bool) {
	if len(sections) == 0 {
		return node, !node.Nil()
	}
	v, ok := node.Gets(sections...)
	if !ok || v.Nil() {
		return v, false
	}
	return v, true
}

// Descend returns the node at sections, or a DATA_SHAPE error naming the
// path and the source URL.
func Descend(node gson.JSON, sourceURL string, sections ...any) (gson.JSON, error) {
	v, ok := lookup(node, sections)
	if !ok {
		return v, models.NewDataShapeError(sourceURL, "missing key path "+Sections(sections).String(), nil)
	}
	return v, nil
}

// Path selects the raw value at sections, nil when absent.
func Path(sections ...any) func(gson.JSON) any {
	return func(n gson.JSON) any {
		v, ok := lookup(n, sections)
		if !ok {
			return nil
		}
		return v.Val()
	}
}

// Str selects a string, "" when absent.
func Str(sections ...any) func(gson.JSON) any {
	return func(n gson.JSON) any {
		v, ok := lookup(n, sections)
		if !ok {
			return ""
		}
		if s, isStr := v.Val().(string); isStr {
			return s
		}
		return v.JSON("", "")
	}
}

// Int selects an integer, 0 when absent.
func Int(sections ...any) func(gson.JSON) any {
	return func(n gson.JSON) any {
		v, ok := lookup(n, sections)
		if !ok {
			return 0
		}
		return v.Int()
	}
}

// Bool selects a boolean, false when absent.
func Bool(sections ...any) func(gson.JSON) any {
	return func(n gson.JSON) any {
		v, ok := lookup(n, sections)
		if !ok {
			return false
		}
		return v.Bool()
	}
}

// Sub applies m to the object at sections, nil when absent.
func Sub(sections []any, m FieldMap[gson.JSON]) func(gson.JSON) any {
	return func(n gson.JSON) any {
		v, ok := lookup(n, sections)
		if !ok {
			return nil
		}
		return Apply(v, m)
	}
}

// Each applies m to every element of the array at sections. An absent
// array yields nil.
func Each(sections []any, m FieldMap[gson.JSON]) func(gson.JSON) any {
	return func(n gson.JSON) any {
		v, ok := lookup(n, sections)
		if !ok {
			return nil
		}
		arr := v.Arr()
		out := make([]Record, 0, len(arr))
		for _, item := range arr {
			out = append(out, Apply(item, m))
		}
		return out
	}
}

// Items maps every element of the array at sections. keep, when non-nil,
// filters elements before mapping (e.g. on a type discriminator) and may
// return a different node to map, such as a nested "item" object. A
// missing array is a DATA_SHAPE error.
func Items(root gson.JSON, sourceURL string, sections []any, keep func(gson.JSON) (gson.JSON, bool), m FieldMap[gson.JSON]) ([]Record, error) {
	arr, err := Descend(root, sourceURL, sections...)
	if err != nil {
		return nil, err
	}
	if _, isArr := arr.Val().([]interface{}); !isArr {
		return nil, models.NewDataShapeError(sourceURL, Sections(sections).String()+" is not an array", nil)
	}

	elems := arr.Arr()
	out := make([]Record, 0, len(elems))
	for _, el := range elems {
		node := el
		if keep != nil {
			var ok bool
			if node, ok = keep(el); !ok {
				continue
			}
		}
		out = append(out, Apply(node, m))
	}
	return out, nil
}

// Object returns node as a Record, or a DATA_SHAPE error when it is not
// a JSON object.
func Object(node gson.JSON, sourceURL string) (Record, error) {
	m, ok := node.Val().(map[string]interface{})
	if !ok {
		return nil, models.NewDataShapeError(sourceURL, "expected a json object", nil)
	}
	return Record(m), nil
}

// Objects returns every object of the array at sections unchanged.
// Non-object elements are skipped.
func Objects(root gson.JSON, sourceURL string, sections ...any) ([]Record, error) {
	arr, err := Descend(root, sourceURL, sections...)
	if err != nil {
		return nil, err
	}
	elems, isArr := arr.Val().([]interface{})
	if !isArr {
		return nil, models.NewDataShapeError(sourceURL, Sections(sections).String()+" is not an array", nil)
	}
	out := make([]Record, 0, len(elems))
	for _, el := range elems {
		if m, ok := el.(map[string]interface{}); ok {
			out = append(out, Record(m))
		}
	}
	return out, nil
}

// HiddenData reads JSON embedded in the text of the first element matching
// selector (typically a <script> tag) and descends sections into it.
func HiddenData(res *engine.FetchResult, selector string, sections ...any) (gson.JSON, error) {
	doc, err := res.Document()
	if err != nil {
		return gson.New(nil), models.NewDataShapeError(res.URL(), "unparseable html", err)
	}
	node := doc.FindMatcher(matcher(selector)).First()
	if node.Length() == 0 {
		return gson.New(nil), models.NewDataShapeError(res.URL(), "hidden data node "+selector+" not found", nil)
	}
	root, err := engine.ParseJSON(node.Text())
	if err != nil {
		return root, models.NewDataShapeError(res.URL(), "hidden data is not valid json", err)
	}
	return Descend(root, res.URL(), sections...)
}

// ScriptJSON finds JSON inside the page source with pattern, whose first
// capture group must match the JSON text, and descends sections into it.
func ScriptJSON(res *engine.FetchResult, pattern *regexp.Regexp, sections ...any) (gson.JSON, error) {
	m := pattern.FindStringSubmatch(res.Content)
	if len(m) < 2 {
		return gson.New(nil), models.NewDataShapeError(res.URL(), "script data "+pattern.String()+" not found", nil)
	}
	root, err := engine.ParseJSON(m[1])
	if err != nil {
		return root, models.NewDataShapeError(res.URL(), "script data is not valid json", err)
	}
	return Descend(root, res.URL(), sections...)
}

// JSONBody parses the response body as JSON after removing any of the
// given anti-hijacking prefixes, such as "{}&&".
func JSONBody(res *engine.FetchResult, strip ...string) (gson.JSON, error) {
	body := strings.TrimSpace(res.Content)
	for _, p := range strip {
		body = strings.TrimPrefix(body, p)
	}
	root, err := engine.ParseJSON(body)
	if err != nil {
		return root, models.NewDataShapeError(res.URL(), "response body is not valid json", err)
	}
	return root, nil
}

// LinkedData returns the first JSON-LD object on the page whose @type is
// typ, looking inside @graph arrays too.
func LinkedData(res *engine.FetchResult, typ string) (gson.JSON, error) {
	root, err := Root(res)
	if err != nil {
		return gson.New(nil), err
	}
	scripts := Find(root, `script[type="application/ld+json"]`)
	for i := 0; i < scripts.Length(); i++ {
		doc, err := engine.ParseJSON(scripts.Eq(i).Text())
		if err != nil {
			continue
		}
		candidates := []gson.JSON{doc}
		if graph, ok := doc.Gets("@graph"); ok {
			candidates = append(candidates, graph.Arr()...)
		}
		candidates = append(candidates, doc.Arr()...)
		for _, c := range candidates {
			if t, ok := c.Gets("@type"); ok && t.Str() == typ {
				return c, nil
			}
		}
	}
	return gson.New(nil), models.NewDataShapeError(res.URL(), "no json-ld object of type "+typ, nil)
}
