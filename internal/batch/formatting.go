package batch

import (
	"encoding/csv"
	"encoding/json"
	"strconv"
	"strings"
)

// formatBatchResults formats the batch processing results in the specified format.
func formatBatchResults(results []FileResult, format string) (string, error) {
	switch format {
	case FormatJSON:
		return formatJSON(results)
	case FormatCSV:
		return formatCSV(results)
	default:
		return formatText(results), nil
	}
}

// formatJSON formats results as JSON.
func formatJSON(results []FileResult) (string, error) {
	batchResult := struct {
		Images []FileResult `json:"images"`
	}{Images: results}
	if batchResult.Images == nil {
		batchResult.Images = []FileResult{}
	}

	bts, err := json.MarshalIndent(batchResult, "", "  ")
	if err != nil {
		return "", err
	}
	return string(bts) + "\n", nil
}

// formatCSV formats results as CSV.
func formatCSV(results []FileResult) (string, error) {
	var output strings.Builder
	writer := csv.NewWriter(&output)

	rows := [][]string{{"file", "status", "text", "file_id", "angle", "crop", "variant", "attempts", "duration_ms", "error"}}
	for _, res := range results {
		var fileID, angle, crop, variant string
		if res.FileID != nil {
			fileID = *res.FileID
		}
		if res.Candidate != nil {
			angle = strconv.Itoa(res.Candidate.Angle)
			crop = res.Candidate.Crop
			variant = res.Candidate.Variant
		}
		rows = append(rows, []string{
			res.File,
			res.Status,
			res.Text,
			fileID,
			angle,
			crop,
			variant,
			strconv.Itoa(res.Attempts),
			strconv.FormatInt(res.Duration.Milliseconds(), 10),
			res.Error,
		})
	}

	if err := writer.WriteAll(rows); err != nil {
		return "", err
	}
	return output.String(), nil
}

// formatText formats results as plain text, one block per file.
func formatText(results []FileResult) string {
	var output strings.Builder
	for i, res := range results {
		if i > 0 {
			output.WriteString("\n")
		}
		output.WriteString("# " + res.File + "\n")
		switch {
		case res.Error != "":
			output.WriteString("error: " + res.Error + "\n")
		case res.Found():
			output.WriteString(res.Text + "\n")
			if res.FileID != nil {
				output.WriteString("file_id: " + *res.FileID + "\n")
			}
		default:
			output.WriteString(res.Status + "\n")
		}
	}
	return output.String()
}
