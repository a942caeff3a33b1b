package export

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/tanmvo/relevance-ai-chat/internal/tripview"
)

//go:embed templates/*.html
var templateFS embed.FS

var itineraryTemplate *template.Template

var funcMap = template.FuncMap{
	"deref": func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	},
	"blockTitle": func(block string) string {
		if block == "" {
			return ""
		}
		return strings.ToUpper(block[:1]) + block[1:]
	},
}

func init() {
	content, err := templateFS.ReadFile("templates/itinerary.html")
	if err != nil {
		itineraryTemplate = template.Must(template.New("itinerary").Funcs(funcMap).Parse(fallbackTemplate))
		return
	}
	itineraryTemplate = template.Must(template.New("itinerary").Funcs(funcMap).Parse(string(content)))
}

type TemplateData struct {
	Title       string
	Destination string
	DateRange   string
	Travelers   string
	Days        []tripview.Day
	GeneratedAt time.Time
}

// Title picks the heading for an itinerary: trip name, then destination.
func Title(doc Document) string {
	if doc.Itinerary.TripName != nil && strings.TrimSpace(*doc.Itinerary.TripName) != "" {
		return *doc.Itinerary.TripName
	}
	if doc.Itinerary.Destination != nil && strings.TrimSpace(*doc.Itinerary.Destination) != "" {
		return *doc.Itinerary.Destination
	}
	return "My Trip"
}

func buildTemplateData(doc Document, now time.Time) TemplateData {
	it := doc.Itinerary
	data := TemplateData{
		Title:       Title(doc),
		Travelers:   travelers(it.Adults, it.Children),
		Days:        doc.Days,
		GeneratedAt: now,
	}
	if it.Destination != nil {
		data.Destination = *it.Destination
	}
	if it.StartDate != nil && it.EndDate != nil {
		data.DateRange = formatDate(*it.StartDate) + " to " + formatDate(*it.EndDate)
	} else if it.StartDate != nil {
		data.DateRange = "From " + formatDate(*it.StartDate)
	}
	return data
}

func formatDate(value string) string {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		return value
	}
	return parsed.Format("Jan 2, 2006")
}

func travelers(adults, children int) string {
	var parts []string
	if adults > 0 {
		parts = append(parts, plural(adults, "adult"))
	}
	if children > 0 {
		parts = append(parts, plural(children, "child"))
	}
	return strings.Join(parts, ", ")
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	if noun == "child" {
		return fmt.Sprintf("%d children", n)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

func RenderItineraryHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := itineraryTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const fallbackTemplate = `<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"><title>{{.Title}}</title></head>
<body>
  <h1>{{.Title}}</h1>
  {{range .Days}}
  <h2>{{.Label}}</h2>
  {{range .Accommodation}}<p>Stay: {{.Name}}</p>{{end}}
  {{range .Blocks}}{{if .Items}}<h3>{{blockTitle .TimeBlock}}</h3><ul>{{range .Items}}<li>{{.Name}}</li>{{end}}</ul>{{end}}{{end}}
  {{end}}
</body>
</html>`
