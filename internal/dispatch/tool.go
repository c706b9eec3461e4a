package dispatch

import "github.com/dgnsrekt/web_agent/internal/backend"

// Tool names the fixed catalogue of remote-callable operations. The catalogue
// is closed: dispatch switches over these constants exhaustively, so adding a
// tool is a compile-visible change, not a runtime registry entry.
type Tool string

const (
	ToolNewTab            Tool = "new_tab"
	ToolNavigatePage      Tool = "navigate_page"
	ToolFillForm          Tool = "fill_form"
	ToolClickElement      Tool = "click_element"
	ToolExtractData       Tool = "extract_data"
	ToolCaptureScreenshot Tool = "capture_screenshot"
	ToolGeneratePDF       Tool = "generate_pdf"
	ToolCloseTab          Tool = "close_tab"
	ToolListTabs          Tool = "list_tabs"
	ToolGoBack            Tool = "go_back"
	ToolRunWorkflow       Tool = "run_workflow"
)

// Catalogue lists every tool in a stable order, for discovery surfaces.
func Catalogue() []Tool {
	return []Tool{
		ToolNewTab,
		ToolNavigatePage,
		ToolFillForm,
		ToolClickElement,
		ToolExtractData,
		ToolCaptureScreenshot,
		ToolGeneratePDF,
		ToolCloseTab,
		ToolListTabs,
		ToolGoBack,
		ToolRunWorkflow,
	}
}

// ParseTool validates a wire-level tool name against the catalogue.
func ParseTool(name string) (Tool, error) {
	switch Tool(name) {
	case ToolNewTab, ToolNavigatePage, ToolFillForm, ToolClickElement,
		ToolExtractData, ToolCaptureScreenshot, ToolGeneratePDF,
		ToolCloseTab, ToolListTabs, ToolGoBack, ToolRunWorkflow:
		return Tool(name), nil
	}
	return "", backend.NewError(backend.KindValidation, "unknown tool: "+name, nil)
}
