package agent

import (
	"fmt"
	"strings"

	"github.com/harun/deskpilot/pkg/llm"
)

// pruneScreenshots replaces the image parts of all but the newest keep
// image-bearing turns with ImagePlaceholder. Turns are never removed, and
// part slices are copied before editing so callers' messages stay intact.
func pruneScreenshots(history []llm.Message, keep int) int {
	if keep < 0 {
		keep = 0
	}

	seen, pruned := 0, 0
	for i := len(history) - 1; i >= 0; i-- {
		if !history[i].HasImage() {
			continue
		}
		seen++
		if seen <= keep {
			continue
		}

		parts := make([]llm.Part, len(history[i].Parts))
		for j, p := range history[i].Parts {
			if p.Type == llm.PartImage {
				p = llm.TextPart(ImagePlaceholder)
			}
			parts[j] = p
		}
		history[i].Parts = parts
		pruned++
	}
	return pruned
}

// screenshotTurn builds the user turn carrying a capture.
func screenshotTurn(shot *ScreenshotContext) llm.Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Current screen (%dx%d).", shot.Width, shot.Height)
	if len(shot.Elements) > 0 {
		b.WriteString(" Detected UI elements:")
		for _, el := range shot.Elements {
			fmt.Fprintf(&b, "\n[%d] %s %q at (%.0f, %.0f)", el.ID, el.Type, el.Content, el.Center.X, el.Center.Y)
			if el.Interactive {
				b.WriteString(" interactive")
			}
		}
	}

	image := shot.Image
	if len(shot.AnnotatedImage) > 0 {
		image = shot.AnnotatedImage
	}
	return llm.Message{
		Role:  llm.RoleUser,
		Parts: []llm.Part{llm.TextPart(b.String()), llm.ImagePart(image, shot.MediaType)},
	}
}

func cloneMessages(msgs []llm.Message) []llm.Message {
	return append([]llm.Message(nil), msgs...)
}
