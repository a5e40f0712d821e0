package orchestrator

import (
	"github.com/user/urbanflow/internal/types"
)

// SeedDemo populates a fresh session with the canonical demo conversation:
// the opening audit request, the weather-data status line, the geometry
// summary, and the resolution-choice form. The workflow is advanced to the
// Solver Orchestration stage to match. Returns the id of the posted form.
func (s *Session) SeedDemo() types.MessageID {
	s.log.Append(types.Message{
		Sender: types.SenderUser,
		Kind:   types.MessageText,
		Text: "Run a fully coupled CFD + solar audit representative of the late March-May " +
			"inter-monsoon window, emphasizing district comfort and energy demand.",
		At: s.now(),
	})
	s.log.Append(types.Message{
		Sender: types.SenderAgent,
		Kind:   types.MessageStatus,
		Text:   "Using NEA weather data (15:00 SGT)",
		At:     s.now(),
	})
	s.log.Append(types.Message{
		Sender: types.SenderAgent,
		Kind:   types.MessageText,
		Text: "Geometry analyzed. I've retrieved weather data from NEA and identified 3 potential " +
			"heat pockets in the eastern sector. Proceed with high-resolution CFD for pedestrian " +
			"comfort, or run a standard preliminary pass?",
		At: s.now(),
	})
	formID := s.log.Append(types.Message{
		Sender: types.SenderAgent,
		Kind:   types.MessageForm,
		Form: &types.FormRequest{
			Kind: "resolution",
			Options: []types.FormOption{
				{
					ID:          "high",
					Label:       "High Resolution",
					ETAHint:     "~45 mins",
					Description: "0.5m mesh grid. Includes detailed pedestrian wind comfort (PET).",
				},
				{
					ID:          "std",
					Label:       "Standard",
					ETAHint:     "~10 mins",
					Description: "2.0m mesh grid. General flow analysis only.",
				},
			},
		},
		At: s.now(),
	})

	// Intent and geometry analysis are done by the time the form is posted.
	s.flow.Advance()
	s.flow.Advance()

	return formID
}
