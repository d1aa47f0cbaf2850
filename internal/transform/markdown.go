package transform

import (
	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
)

// markdownTransform converts an HTML fragment captured by an `html` or
// `outerHtml` extractor into Markdown, for transports that render Markdown
// bodies better than raw tags (ntfy, generic webhook consumers). Registered
// separately from the catalogue in transform.go since it pulls in the
// html-to-markdown dependency rather than being pure stdlib.
func markdownTransform(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return convertOne(v)
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = markdownTransform(item)
		}
		return out
	default:
		return value
	}
}

func convertOne(html string) string {
	md, err := htmltomarkdown.ConvertString(html)
	if err != nil {
		return html
	}
	return md
}

func init() {
	registerExtra("markdown", markdownTransform)
}

// extras holds transform kinds that take a plain value->value function
// rather than the full spec-aware Apply switch, registered via init() so
// transform.go stays free of the html-to-markdown import for the common
// path.
var extras = map[string]func(interface{}) interface{}{}

func registerExtra(name string, f func(interface{}) interface{}) {
	extras[name] = f
}
