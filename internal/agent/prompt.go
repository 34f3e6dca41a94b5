package agent

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxPromptTools  = 10
	maxPromptScreen = 1000
)

// systemPrompt is sent as the system instruction of every decision request.
const systemPrompt = `You are Cherry, an intelligent desktop assistant that controls the user's computer one action at a time.
You observe a textual summary of the screen and reply with exactly one JSON action.`

// PromptInput is everything the decision prompt depends on.
type PromptInput struct {
	Goal                string
	History             []string
	Screen              string
	Tools               []string
	ActionTimeout       time.Duration
	MaxExecutionTime    time.Duration
	ScreenAnalysisDelay time.Duration
}

// BuildPrompt renders the decision prompt. Output is a pure function of in;
// callers pass only the history tail the model may see.
func BuildPrompt(in PromptInput) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are an intelligent AI assistant with extended execution time and advanced tool access.

EXECUTION GUIDELINES:
1. You have up to %s seconds per action and %s seconds total
2. Take time to analyze the screen carefully after each action (%ss delay)
3. Break complex tasks into smaller, manageable steps
4. Use MCP tools when available for enhanced capabilities
5. If unclear about the user's goal, ask for clarification ONCE only
6. Use 'finish' when the task is complete or if you encounter persistent errors

Standard Functions:
- open_application(app_name: str) - Opens an application
- open_website(url: str) - Opens a website
- search_web(query: str, max_results: Optional[int] = 5) - Searches the web
- type_text(text: str) - Types text
- press_key(key: str, modifier: Optional[str] = None) - Presses keys
- click_mouse(x: int, y: int, button: Optional[str] = "left", clicks: Optional[int] = 1) - Clicks at coordinates
- scroll(x: int, y: int, direction: str, clicks: int) - Scrolls at position
- drag_mouse(start_x: int, start_y: int, end_x: int, end_y: int) - Drags between points
- take_screenshot() - Takes a screenshot for analysis
- speak(text: str) - Speaks to user (use sparingly)
- wait(seconds: float) - Waits for specified time
- finish(summary: str) - Completes the task

MCP Functions:
- mcp_execute(tool: str, arguments: dict) - Execute MCP tool
`, FormatSeconds(in.ActionTimeout), FormatSeconds(in.MaxExecutionTime), FormatSeconds(in.ScreenAnalysisDelay))

	if len(in.Tools) > 0 {
		tools := in.Tools
		if len(tools) > maxPromptTools {
			tools = tools[:maxPromptTools]
		}
		b.WriteString("\nMCP Tools Available:\n")
		for _, t := range tools {
			fmt.Fprintf(&b, "- %s: Use mcp_execute with tool='%s'\n", t, t)
		}
	}

	b.WriteString(`
Window Functions:
- minimize_window() - Minimizes the active window
- maximize_window() - Maximizes the active window
- close_window() - Closes the active window
- switch_application(direction: Optional[str] = "next") - Switches to the next or previous application
`)

	fmt.Fprintf(&b, "\nUser's Goal: %q\n\nRecent Action History:\n", in.Goal)
	for _, entry := range in.History {
		fmt.Fprintf(&b, "- %s\n", entry)
	}

	fmt.Fprintf(&b, "\nCurrent Screen Analysis: %s...\n", Truncate(in.Screen, maxPromptScreen))

	b.WriteString(`
IMPORTANT: Take your time, analyze the screen thoroughly, and ensure each action moves toward the goal.
Respond with clean JSON only: {"function": "function_name", "parameters": {"key": "value"}}`)

	return b.String()
}
