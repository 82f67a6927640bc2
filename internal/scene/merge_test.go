package scene

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeOrdersUnitsAndStripsImports(t *testing.T) {
	units := []Unit{
		{Number: 2, Code: "from manim import *\nimport numpy as np\nclass Scene2(Scene):\n    def construct(self):\n        self.wait()\n"},
		{Number: 1, Code: "class Scene1(Scene):\n    def construct(self):\n        self.wait()\n"},
	}
	program := Merge(units, "")

	assert.True(t, strings.HasPrefix(program, Preamble(DefaultHelperModule)))
	assert.Contains(t, program, "try:\n    from visual_utils import *\nexcept ImportError:\n    pass\n")
	assert.Equal(t, 1, strings.Count(program, "from manim import *"))
	assert.Equal(t, 1, strings.Count(program, "import numpy as np"))
	assert.Less(t, strings.Index(program, "class Scene1"), strings.Index(program, "class Scene2"))
	assert.Equal(t, []string{"Scene1", "Scene2"}, SceneClasses(program))
}

func TestMergeRenamesClashingClasses(t *testing.T) {
	units := []Unit{
		{Number: 1, Code: "class Intro(Scene):\n    def construct(self):\n        self.wait()\n"},
		{Number: 2, Code: "class Intro(Scene):\n    def construct(self):\n        self.wait()\n"},
	}
	assert.Equal(t, []string{"Intro", "Scene2"}, SceneClasses(Merge(units, "helpers")))
	assert.Contains(t, Merge(units, "helpers"), "from helpers import *")
}

func TestMergeEmpty(t *testing.T) {
	assert.Equal(t, Preamble("visual_utils"), Merge(nil, ""))
}
