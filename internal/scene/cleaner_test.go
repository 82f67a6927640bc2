package scene

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanPrefersPythonFence(t *testing.T) {
	raw := "Here you go:\n```text\nignore me\n```\n```python\nclass Scene1(Scene):\n    def construct(self):\n        self.wait()\n```\nEnjoy!"
	assert.Equal(t, "class Scene1(Scene):\n    def construct(self):\n        self.wait()\n", Clean(raw))
}

func TestCleanFallsBackToFirstFence(t *testing.T) {
	raw := "```\nx = 1\n```\n```\ny = 2\n```"
	assert.Equal(t, "x = 1\n", Clean(raw))
}

func TestCleanStripsArtifacts(t *testing.T) {
	raw := "markdown artifacts\nx = 1   \n```\n"
	assert.Equal(t, "x = 1\n", Clean(raw))
}

func TestClassesAndRunTimes(t *testing.T) {
	code := `class Helper:
    pass

class Scene3(MovingCameraScene):
    def construct(self):
        self.play(Write(t), run_time=1.25)
        self.play(FadeOut(t), run_time = 2)
`
	classes := Classes(code)
	if assert.Len(t, classes, 2) {
		assert.Equal(t, "Scene3", classes[1].Name)
		assert.Equal(t, 3, classes[1].Line)
	}
	assert.Equal(t, []string{"Scene3"}, SceneClasses(code))
	assert.Equal(t, []string{"1.25", "2"}, RunTimes(code))
}
