package stage

import "github.com/gofiber/fiber/v2"

// List Stages godoc
// @Summary      Stage table
// @Description  Labels, colours and progress positions of every assignment stage
// @Tags         stages
// @Produce      json
// @Success      200  {object}  map[string]any  "stages, main_sequence"
// @Router       /stages [get]
func List(c *fiber.Ctx) error {
	type item struct {
		Descriptor
		Progress int `json:"progress_index"`
	}
	all := All()
	items := make([]item, 0, len(all))
	for _, d := range all {
		items = append(items, item{Descriptor: d, Progress: ProgressIndex(d.Key, MainSequence)})
	}
	return c.JSON(fiber.Map{"stages": items, "main_sequence": MainSequence})
}
