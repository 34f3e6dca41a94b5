// internal/agent/models.go
package agent

import (
	json "github.com/json-iterator/go"
)

// ActionName is the function name the model uses to request an action.
type ActionName string

const (
	// -- Device Interaction --
	ActionOpenApplication ActionName = "open_application"
	ActionTypeText        ActionName = "type_text"
	ActionPressKey        ActionName = "press_key"
	ActionClickMouse      ActionName = "click_mouse"
	ActionScroll          ActionName = "scroll"
	ActionDragMouse       ActionName = "drag_mouse"

	// -- Window Management --
	ActionMinimizeWindow    ActionName = "minimize_window"
	ActionMaximizeWindow    ActionName = "maximize_window"
	ActionCloseWindow       ActionName = "close_window"
	ActionSwitchApplication ActionName = "switch_application"

	// -- Web --
	ActionOpenWebsite ActionName = "open_website"
	ActionSearchWeb   ActionName = "search_web"

	// -- Perception, Control and Tools --
	ActionTakeScreenshot ActionName = "take_screenshot"
	ActionWait           ActionName = "wait"
	ActionSpeak          ActionName = "speak"
	ActionMCPExecute     ActionName = "mcp_execute"

	// -- Task Control --
	ActionFinish ActionName = "finish"
)

// ActionParams is the typed parameter payload of one action. The set of
// implementations is closed; see paramsFor.
type ActionParams interface {
	actionName() ActionName
}

type OpenApplicationParams struct {
	AppName string `json:"app_name"`
}

type OpenWebsiteParams struct {
	URL string `json:"url"`
}

type SearchWebParams struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results,omitempty"`
}

type TypeTextParams struct {
	Text string `json:"text"`
}

type PressKeyParams struct {
	Key      string `json:"key"`
	Modifier string `json:"modifier,omitempty"`
}

// ClickMouseParams clicks at screen coordinates. Button defaults to left and
// Clicks to 1.
type ClickMouseParams struct {
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Button string `json:"button,omitempty"`
	Clicks int    `json:"clicks,omitempty"`
}

// ScrollParams scrolls the wheel at a position. Clicks defaults to 3.
type ScrollParams struct {
	X         int    `json:"x"`
	Y         int    `json:"y"`
	Direction string `json:"direction"`
	Clicks    int    `json:"clicks,omitempty"`
}

type DragMouseParams struct {
	StartX int `json:"start_x"`
	StartY int `json:"start_y"`
	EndX   int `json:"end_x"`
	EndY   int `json:"end_y"`
}

type TakeScreenshotParams struct{}

type WaitParams struct {
	Seconds float64 `json:"seconds"`
}

type SpeakParams struct {
	Text string `json:"text"`
}

type MCPExecuteParams struct {
	Tool      string         `json:"tool"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type MinimizeWindowParams struct{}

type MaximizeWindowParams struct{}

type CloseWindowParams struct{}

// SwitchApplicationParams cycles windows; Direction is "next" (default) or "previous".
type SwitchApplicationParams struct {
	Direction string `json:"direction,omitempty"`
}

type FinishParams struct {
	Summary string `json:"summary"`
}

// UnknownParams carries the raw parameters of a function name the agent does
// not implement, so the executor can report it.
type UnknownParams struct {
	Raw map[string]any
}

func (OpenApplicationParams) actionName() ActionName   { return ActionOpenApplication }
func (OpenWebsiteParams) actionName() ActionName       { return ActionOpenWebsite }
func (SearchWebParams) actionName() ActionName         { return ActionSearchWeb }
func (TypeTextParams) actionName() ActionName          { return ActionTypeText }
func (PressKeyParams) actionName() ActionName          { return ActionPressKey }
func (ClickMouseParams) actionName() ActionName        { return ActionClickMouse }
func (ScrollParams) actionName() ActionName            { return ActionScroll }
func (DragMouseParams) actionName() ActionName         { return ActionDragMouse }
func (TakeScreenshotParams) actionName() ActionName    { return ActionTakeScreenshot }
func (WaitParams) actionName() ActionName              { return ActionWait }
func (SpeakParams) actionName() ActionName             { return ActionSpeak }
func (MCPExecuteParams) actionName() ActionName        { return ActionMCPExecute }
func (MinimizeWindowParams) actionName() ActionName    { return ActionMinimizeWindow }
func (MaximizeWindowParams) actionName() ActionName    { return ActionMaximizeWindow }
func (CloseWindowParams) actionName() ActionName       { return ActionCloseWindow }
func (SwitchApplicationParams) actionName() ActionName { return ActionSwitchApplication }
func (FinishParams) actionName() ActionName            { return ActionFinish }
func (UnknownParams) actionName() ActionName           { return "" }

// paramsFor returns a pointer to the zero parameter struct for name, or nil
// when the name is not a known action.
func paramsFor(name ActionName) ActionParams {
	switch name {
	case ActionOpenApplication:
		return &OpenApplicationParams{}
	case ActionOpenWebsite:
		return &OpenWebsiteParams{}
	case ActionSearchWeb:
		return &SearchWebParams{}
	case ActionTypeText:
		return &TypeTextParams{}
	case ActionPressKey:
		return &PressKeyParams{}
	case ActionClickMouse:
		return &ClickMouseParams{}
	case ActionScroll:
		return &ScrollParams{}
	case ActionDragMouse:
		return &DragMouseParams{}
	case ActionTakeScreenshot:
		return &TakeScreenshotParams{}
	case ActionWait:
		return &WaitParams{}
	case ActionSpeak:
		return &SpeakParams{}
	case ActionMCPExecute:
		return &MCPExecuteParams{}
	case ActionMinimizeWindow:
		return &MinimizeWindowParams{}
	case ActionMaximizeWindow:
		return &MaximizeWindowParams{}
	case ActionCloseWindow:
		return &CloseWindowParams{}
	case ActionSwitchApplication:
		return &SwitchApplicationParams{}
	case ActionFinish:
		return &FinishParams{}
	default:
		return nil
	}
}

// Action is one atomic step requested by the decision engine.
type Action struct {
	Name   ActionName
	Params ActionParams
}

// IsZero reports whether the action is empty, meaning no usable decision was made.
func (a Action) IsZero() bool {
	return a.Name == "" && a.Params == nil
}

// IsUnknown reports whether the model named a function the agent does not have.
func (a Action) IsUnknown() bool {
	_, ok := a.Params.(UnknownParams)
	return ok
}

// canonicalJSON sorts map keys so that equal parameters always encode equally.
var canonicalJSON = json.Config{
	EscapeHTML:             false,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
}.Froze()

// ParamsJSON renders the parameters as canonical JSON ("{}" when empty).
func (a Action) ParamsJSON() string {
	var v any = a.Params
	if u, ok := a.Params.(UnknownParams); ok {
		v = u.Raw
	}
	if v == nil {
		return "{}"
	}
	data, err := canonicalJSON.Marshal(v)
	if err != nil || string(data) == "null" {
		return "{}"
	}
	return string(data)
}

// RepeatKey identifies an action for repeat detection: name plus canonical parameters.
func (a Action) RepeatKey() string {
	return string(a.Name) + ":" + a.ParamsJSON()
}

// String renders the action as name(params) for history entries and logs.
func (a Action) String() string {
	return string(a.Name) + "(" + a.ParamsJSON() + ")"
}

// NewAction builds an action from typed params.
func NewAction(p ActionParams) Action {
	return Action{Name: p.actionName(), Params: p}
}

// Speak builds a speak action.
func Speak(text string) Action { return NewAction(SpeakParams{Text: text}) }

// Finish builds a finish action.
func Finish(summary string) Action { return NewAction(FinishParams{Summary: summary}) }
