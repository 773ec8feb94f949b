package render

import (
	"fmt"
	"strings"
)

const standardImports = `from manim import *
import numpy as np
import math
`

// PrepareScript turns generated code into a runnable manim script that
// paints the requested background.
func PrepareScript(code, background string) string {
	hasImport := strings.Contains(code, "from manim import") || strings.Contains(code, "import manim")

	if !strings.Contains(code, "class ") || !strings.Contains(code, "Scene") {
		return wrapInScene(code, background)
	}

	if !hasImport {
		code = standardImports + "\n" + code
	}

	if strings.Contains(code, "background_color") {
		return code
	}

	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if !strings.Contains(line, "def construct(self):") {
			continue
		}
		indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
		assign := fmt.Sprintf("%s    self.camera.background_color = %q", indent, background)
		lines = append(lines[:i+1], append([]string{assign}, lines[i+1:]...)...)
		break
	}
	return strings.Join(lines, "\n")
}

// wrapInScene places bare statements inside a construct method. Import lines
// are kept at module level.
func wrapInScene(code, background string) string {
	var imports, body []string
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if line == trimmed && (strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ")) {
			if !strings.Contains(standardImports, trimmed) {
				imports = append(imports, trimmed)
			}
			continue
		}
		body = append(body, line)
	}

	var sb strings.Builder
	sb.WriteString(standardImports)
	for _, imp := range imports {
		sb.WriteString(imp)
		sb.WriteByte('\n')
	}
	sb.WriteString("\n\nclass GeneratedAnimation(Scene):\n")
	sb.WriteString("    def construct(self):\n")
	fmt.Fprintf(&sb, "        self.camera.background_color = %q\n\n", background)
	sb.WriteString(indent(strings.Join(body, "\n"), 8))
	sb.WriteByte('\n')
	return sb.String()
}

// indent prefixes every non-blank line with n spaces.
func indent(code string, n int) string {
	pad := strings.Repeat(" ", n)
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}
