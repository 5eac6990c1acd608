package report

import (
	"strings"
	"testing"
)

func TestBuildHTML(t *testing.T) {
	md := "# Prior Art Search Report\n\n| Metric | Value |\n|---|---|\n| Analyzed | 40 |\n\n### 1. Charging pad\n\n**Score:** 91.0\n"
	doc, err := buildHTML(md)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc, "<h1>Prior Art Search Report</h1>") {
		t.Fatalf("missing heading:\n%s", doc)
	}
	if !strings.Contains(doc, "<table>") {
		t.Fatal("summary table not rendered")
	}
	if !strings.Contains(doc, "<strong>Score:</strong> 91.0") {
		t.Fatal("score line not rendered")
	}
}

func TestBuildHTMLEscapesRawHTML(t *testing.T) {
	doc, err := buildHTML("hello <script>alert(1)</script>")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(doc, "<script>alert(1)</script>") {
		t.Fatal("raw html passed through")
	}
}
