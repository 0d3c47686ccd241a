package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cvcreator-backend/internal/documents"
	"cvcreator-backend/internal/render"
)

func main() {
	kindFlag := flag.String("kind", "resume", "document kind: resume or coverletter")
	templateName := flag.String("template", "", "template name (defaults to the kind's embedded template)")
	templateDir := flag.String("templates", "", "template directory (defaults to the embedded templates)")
	outPath := flag.String("out", "", "output PDF path (defaults to ./out/sample_<kind>.pdf)")
	htmlOnly := flag.Bool("html-only", false, "write the rendered HTML without launching Chrome")
	chromePath := flag.String("chrome", os.Getenv("CHROME_PATH"), "Chrome executable")
	flag.Parse()

	kind, err := documents.ParseKind(*kindFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid kind: %v\n", err)
		os.Exit(1)
	}
	if *templateName == "" {
		*templateName = string(kind)
	}
	if *outPath == "" {
		*outPath = filepath.Join("out", "sample_"+string(kind)+".pdf")
	}

	values := sampleValues(kind)
	if err := documents.ValidateFormValues(kind, values); err != nil {
		fmt.Fprintf(os.Stderr, "sample values invalid: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	html, err := render.NewTemplates(*templateDir).Render(ctx, *templateName, values)
	if err != nil {
		fmt.Fprintf(os.Stderr, "template render failed: %v\n", err)
		os.Exit(1)
	}
	if idx := strings.Index(html, "{{"); idx != -1 {
		fmt.Fprintf(os.Stderr, "unresolved template tokens near offset %d\n", idx)
		os.Exit(1)
	}

	var pdf []byte
	if !*htmlOnly {
		pdf, err = render.NewChromedp(*chromePath, time.Minute).Render(ctx, html)
		if err != nil {
			fmt.Fprintf(os.Stderr, "pdf render failed: %v\n", err)
			os.Exit(1)
		}
		if !bytes.HasPrefix(pdf, []byte("%PDF-")) {
			fmt.Fprintf(os.Stderr, "renderer output is not a PDF\n")
			os.Exit(1)
		}
	}

	if err := writeOutputs(*outPath, values, html, pdf); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK: wrote %s (file name %q)\n", *outPath, documents.DownloadName(documents.DeriveFileName(kind, values)))
}

func writeOutputs(outPath string, values map[string]any, html string, pdf []byte) error {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(outPath, filepath.Ext(outPath))

	payload, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(base+".json", payload, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(base+".html", []byte(html), 0o644); err != nil {
		return err
	}
	if pdf == nil {
		return nil
	}
	return os.WriteFile(outPath, pdf, 0o644)
}

func sampleValues(kind documents.Kind) map[string]any {
	if kind == documents.KindCoverLetter {
		return map[string]any{
			"senderInfo": map[string]any{
				"fullName": "Jordan Lee",
				"jobTitle": "Senior Backend Engineer",
				"email":    "jordan.lee@example.com",
				"address":  "Austin, TX",
			},
			"recipientInfo": map[string]any{"companyName": "Acme Logistics", "hiringManagerName": "Sam Rivera"},
			"metaInfo":      map[string]any{"subject": "Senior Backend Engineer", "sentDate": "2026-01-15"},
			"content": map[string]any{
				"salutation":   "Dear Sam,",
				"introduction": "I am excited to apply for the Senior Backend Engineer role at Acme Logistics.",
				"body":         "Over eight years I have built resilient APIs and data services.\nI led a routing rewrite that reduced shipment latency by 18%.",
				"conclusion":   "I would welcome the chance to discuss how I can help your platform team.",
				"signOff":      "Kind regards,",
			},
		}
	}
	return map[string]any{
		"personalInfo": map[string]any{
			"fullName":    "Jordan Lee",
			"jobTitle":    "Senior Backend Engineer",
			"email":       "jordan.lee@example.com",
			"phoneNumber": "+1-555-0102",
			"website":     "https://github.com/jordanlee",
		},
		"summaryInfo": map[string]any{
			"text": "Backend engineer with 8+ years of experience building resilient APIs and data services.",
		},
		"experiencesInfo": []any{
			map[string]any{
				"title":     "Senior Backend Engineer",
				"company":   "Acme Logistics",
				"startDate": "2021-04",
				"isCurrent": true,
				"text":      "Designed a routing service that reduced shipment latency by 18%.\nImplemented distributed tracing to cut incident triage time by 35%.",
			},
			map[string]any{
				"title":     "Backend Engineer",
				"company":   "Blue Harbor Systems",
				"startDate": "2018-01",
				"endDate":   "2021-03",
				"text":      "Built event-driven ingestion pipelines for compliance data feeds.",
			},
		},
		"educationsInfo": []any{
			map[string]any{"title": "BSc Computer Science", "institute": "UT Austin", "startDate": "2012-09", "endDate": "2016-06"},
		},
		"skillsInfo":    []any{map[string]any{"title": "Go"}, map[string]any{"title": "PostgreSQL"}, map[string]any{"title": "AWS"}},
		"languagesInfo": []any{map[string]any{"title": "English"}, map[string]any{"title": "Spanish"}},
	}
}
