package system

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/julianstephens/salonbot/internal/cli"
)

// CatalogCmd prints the services, slots and contacts the bot offers.
type CatalogCmd struct{}

func (c *CatalogCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("Key", "Service", "Price", "Duration", "Description").
		StyleFunc(func(row, col int) lipgloss.Style {
			s := lipgloss.NewStyle().Padding(0, 1)
			if row == table.HeaderRow {
				return s.Bold(true)
			}
			return s
		})
	for _, s := range cat.Services() {
		t.Row(s.Key, s.Name, s.Price, s.Duration, s.Description)
	}

	ctx.Println("Services:")
	ctx.Println(t.String())
	ctx.Println()
	ctx.Printf("Slots: %s\n", strings.Join(cat.Slots(), ", "))
	if contacts := strings.TrimSpace(cat.Contacts()); contacts != "" {
		ctx.Println()
		ctx.Println(contacts)
	}
	return nil
}
