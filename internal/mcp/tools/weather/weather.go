// Package weather provides the "get_weather" tool: a fixed lookup table of
// current conditions for a handful of cities.
package weather

import (
	"context"
	"log/slog"

	"github.com/MrWong99/mcpagent/internal/mcp/tools"
	"github.com/MrWong99/mcpagent/pkg/types"
)

// ToolName is the name the tool is declared under.
const ToolName = "get_weather"

// conditions maps city names to their reported weather.
var conditions = map[string]string{
	"北京": "晴朗, 25°C",
	"上海": "小雨, 22°C",
	"纽约": "多云, 18°C",
}

type args struct {
	City string `json:"city"`
}

// Lookup returns the weather for city. Unknown cities yield
// "未知城市: <city>" as a normal result.
func Lookup(city string) string {
	if w, ok := conditions[city]; ok {
		return w
	}
	return "未知城市: " + city
}

func handle(_ context.Context, raw string) (string, error) {
	var a args
	if err := tools.DecodeArgs(ToolName, raw, &a); err != nil {
		return "", err
	}
	slog.Info("querying weather", "city", a.City)
	return Lookup(a.City), nil
}

// Tools returns the weather tool set.
func Tools() []tools.Tool {
	return []tools.Tool{{
		Definition: types.ToolDefinition{
			Name:        ToolName,
			Description: "获取指定城市的天气情况",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "城市名称, 例如 北京",
					},
				},
				"required": []string{"city"},
			},
		},
		Handler: handle,
	}}
}
