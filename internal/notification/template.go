package notification

import (
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Match pairs a concept with its similarity score for alert rendering.
type Match struct {
	Concept string
	Score   float32
}

// AlertData carries everything an alert body renders. The agent populates
// it so the notifier stays decoupled from the pipeline types.
type AlertData struct {
	NodeName string

	// Scoring outcome
	Score      float64
	Reason     string
	TopMatches []Match

	// Archive coordinates
	LocationKey string
	Wall        string
	Shelf       int
	Volume      int
	Page        int

	// Artifacts and run statistics
	ImagePath      string
	ImagesAnalyzed int64
	Discoveries    int64
	Timestamp      time.Time
}

// DiscoveryRate returns discoveries per analyzed image as a percentage.
func (d *AlertData) DiscoveryRate() string {
	if d.ImagesAnalyzed == 0 {
		return "0.0000%"
	}
	return fmt.Sprintf("%.4f%%", float64(d.Discoveries)/float64(d.ImagesAnalyzed)*100)
}

var alertTemplate = template.Must(template.New("alert").Parse(`<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 20px; border-radius: 10px; color: white; text-align: center;">
    <h1 style="margin: 0;">Significant Image Discovered</h1>
    <p style="margin: 10px 0 0 0; font-size: 18px;">{{.NodeName}}</p>
  </div>

  <div style="padding: 20px; background-color: #f5f5f5; margin-top: 20px; border-radius: 10px;">
    <h2 style="color: #667eea; border-bottom: 2px solid #667eea; padding-bottom: 10px;">Analysis Results</h2>

    <table style="width: 100%; margin-top: 15px;">
      <tr>
        <td style="padding: 8px; background-color: white;"><strong>Significance Score:</strong></td>
        <td style="padding: 8px; background-color: white; text-align: right;">{{printf "%.3f" .Score}}</td>
      </tr>
      <tr>
        <td style="padding: 8px; background-color: white;"><strong>Primary Match:</strong></td>
        <td style="padding: 8px; background-color: white; text-align: right;">{{.Reason}}</td>
      </tr>
    </table>

    <h3 style="color: #667eea; margin-top: 20px;">Top Semantic Matches:</h3>
    <ol style="background-color: white; padding: 20px; border-radius: 5px;">
      {{range .TopMatches}}<li><strong>{{.Concept}}</strong>: {{printf "%.3f" .Score}}</li>{{end}}
    </ol>

    <h3 style="color: #667eea; margin-top: 20px;">Babelia Coordinates:</h3>
    <div style="background-color: #2d3748; color: #68d391; padding: 15px; border-radius: 5px; font-family: monospace;">
      <strong>Hex:</strong> {{.LocationKey}}<br>
      <strong>Wall:</strong> {{.Wall}} |
      <strong>Shelf:</strong> {{.Shelf}} |
      <strong>Volume:</strong> {{.Volume}} |
      <strong>Page:</strong> {{.Page}}
    </div>

    <h3 style="color: #667eea; margin-top: 20px;">Search Statistics:</h3>
    <table style="width: 100%; background-color: white; padding: 15px; border-radius: 5px;">
      <tr>
        <td style="padding: 5px;"><strong>Images Analyzed:</strong></td>
        <td style="text-align: right;">{{.ImagesAnalyzed}}</td>
      </tr>
      <tr>
        <td style="padding: 5px;"><strong>Total Discoveries:</strong></td>
        <td style="text-align: right;">{{.Discoveries}}</td>
      </tr>
      <tr>
        <td style="padding: 5px;"><strong>Discovery Rate:</strong></td>
        <td style="text-align: right;">{{.DiscoveryRate}}</td>
      </tr>
    </table>
  </div>

  <div style="text-align: center; margin-top: 20px; color: #718096; font-size: 12px;">
    <p>Generated by {{.NodeName}}</p>
    <p>Time: {{.Timestamp.UTC.Format "2006-01-02 15:04:05"}} UTC</p>
  </div>
</body>
</html>`))

// renderAlertBody renders the HTML alert body for a discovery.
func renderAlertBody(data *AlertData) (string, error) {
	var sb strings.Builder
	if err := alertTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render alert body: %w", err)
	}
	return sb.String(), nil
}
