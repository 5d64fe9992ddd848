package export

import (
	"fmt"
	"html"
	"html/template"
	"strings"

	"npa/draftbuilder/internal/draft"
)

// FieldValueHTML renders a field value for the export body. Text is always
// escaped.
func FieldValueHTML(f *draft.Field) template.HTML {
	switch f.Type {
	case draft.TypeBulletList:
		if len(f.BulletItems) == 0 {
			return ""
		}
		var b strings.Builder
		b.WriteString("<ul>")
		for _, item := range f.BulletItems {
			if strings.TrimSpace(item) == "" {
				continue
			}
			fmt.Fprintf(&b, "<li>%s</li>", html.EscapeString(item))
		}
		b.WriteString("</ul>")
		return template.HTML(b.String())
	case draft.TypeMultiselect:
		parts := strings.Split(f.Value, ",")
		escaped := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				escaped = append(escaped, fmt.Sprintf(`<span class="tag">%s</span>`, html.EscapeString(p)))
			}
		}
		return template.HTML(strings.Join(escaped, " "))
	case draft.TypeTextarea:
		if f.Value == "" {
			return ""
		}
		paragraphs := strings.Split(strings.ReplaceAll(f.Value, "\r\n", "\n"), "\n\n")
		var b strings.Builder
		for _, p := range paragraphs {
			if strings.TrimSpace(p) == "" {
				continue
			}
			lines := strings.Split(p, "\n")
			for i := range lines {
				lines[i] = html.EscapeString(lines[i])
			}
			fmt.Fprintf(&b, "<p>%s</p>", strings.Join(lines, "<br>"))
		}
		return template.HTML(b.String())
	default:
		return template.HTML(html.EscapeString(f.Value))
	}
}
