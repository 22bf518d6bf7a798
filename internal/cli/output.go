package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"traffic-logger/internal/apiclient"
)

const rule = "------------------------------------------------------------"

func banner(out io.Writer, title string) {
	line := strings.Repeat("=", len(rule))
	fmt.Fprintf(out, "\n%s\n  %s\n%s\n\n", line, title, line)
}

func prettyJSON(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return string(raw)
	}
	return buf.String()
}

func printPayload(out io.Writer, label string, payload any) {
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", label, payload)
		return
	}
	fmt.Fprintf(out, "%s:\n%s\n\n", label, b)
}

func printResult(out io.Writer, res *apiclient.Result, showHeaders bool) {
	fmt.Fprintln(out, "Response:")
	fmt.Fprintf(out, "Status: %d\n", res.StatusCode)
	if showHeaders {
		names := make([]string, 0, len(res.Header))
		for name := range res.Header {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(out, "Headers:")
		for _, name := range names {
			fmt.Fprintf(out, "  %s: %s\n", name, strings.Join(res.Header[name], ", "))
		}
	}
	fmt.Fprintf(out, "Body: %s\n", prettyJSON(res.Body))
}

// reportOutcome prints the verdict and the storage location when present.
func reportOutcome(out io.Writer, status int, body []byte) {
	if status != 200 {
		fmt.Fprintf(out, "\nRequest finished with status %d\n", status)
		return
	}
	fmt.Fprintln(out, "\nTest succeeded")
	var stored struct {
		S3Location string `json:"s3_location"`
	}
	if err := json.Unmarshal(body, &stored); err == nil && stored.S3Location != "" {
		fmt.Fprintf(out, "Stored at: %s\n", stored.S3Location)
	}
}
