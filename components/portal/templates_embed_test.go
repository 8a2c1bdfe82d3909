package portal

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestEmbeddedTemplatesRenderOutsideModule(t *testing.T) {
	service, session := openExecutive(t)
	t.Chdir(t.TempDir())

	renderer, err := NewTemplateRenderer()
	if err != nil {
		t.Fatalf("new renderer: %v", err)
	}
	controller := NewController(ControllerOptions{Service: service, Renderer: renderer})
	if _, err := session.OpenDrillDown(context.Background(), "process_efficiency", nil); err != nil {
		t.Fatalf("open drill-down: %v", err)
	}
	session.Wait()

	var buf bytes.Buffer
	if err := controller.RenderTemplate(context.Background(), session, &buf); err != nil {
		t.Fatalf("render: %v", err)
	}
	html := buf.String()
	for _, want := range []string{
		"Executive Summary",
		"<span>9,536</span>",
		`data-drilldown="process_efficiency"`,
		`<option value="Maharashtra" selected>`,
		`data-metric="process_efficiency"`,
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("rendered page missing %q", want)
		}
	}
}
