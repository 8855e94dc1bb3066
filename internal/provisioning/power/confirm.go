package power

import (
	"context"
	"errors"

	"github.com/charmbracelet/huh"

	"github.com/imamik/metalboot/internal/provisioning"
)

// ErrDeclined is returned when the operator refuses the destructive reset.
var ErrDeclined = errors.New("reset of running nodes declined")

// PromptConfirm returns a Confirmer that asks on the terminal.
func PromptConfirm(ctx context.Context) provisioning.Confirmer {
	return func(prompt string) (bool, error) {
		var ok bool
		err := huh.NewForm(
			huh.NewGroup(
				huh.NewConfirm().
					Title(prompt).
					Description("Every node listed above is wiped and reinstalled").
					Affirmative("Reset").
					Negative("Abort").
					Value(&ok),
			),
		).RunWithContext(ctx)
		if err != nil {
			return false, err
		}
		return ok, nil
	}
}
