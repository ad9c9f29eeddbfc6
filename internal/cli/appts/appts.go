// Package appts exposes the administrator operations on the command line.
// Every command runs through the same controller the bot uses, so the
// caller must be a configured administrator.
package appts

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/julianstephens/salonbot/internal/admin"
	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/events"
	"github.com/julianstephens/salonbot/internal/models"
	"github.com/julianstephens/salonbot/internal/storage"
	"github.com/julianstephens/salonbot/internal/utils"
)

var ErrNoAdmin = errors.New("no administrator configured: pass --as or set --admins")

// AdminFlags select the administrator identity and the event sink.
type AdminFlags struct {
	As string `name:"as" help:"Administrator id to act as (defaults to the first configured admin)." env:"SALONBOT_ADMIN_ID"`

	cli.EventFlags `embed:""`
}

func (f AdminFlags) caller(ctx *cli.Context) (string, error) {
	if f.As != "" {
		return f.As, nil
	}
	admins := ctx.Config.Admins()
	if len(admins) == 0 {
		return "", ErrNoAdmin
	}
	slices.Sort(admins)
	return admins[0], nil
}

// controller builds an admin controller and returns the publisher so the
// caller can flush it before exiting.
func (f AdminFlags) controller(ctx *cli.Context) (*admin.Controller, events.Publisher, error) {
	cat, err := ctx.Catalog()
	if err != nil {
		return nil, nil, err
	}
	pub, err := f.Publisher()
	if err != nil {
		return nil, nil, err
	}
	opts := []admin.Option{admin.WithPublisher(pub)}
	if ctx.Now != nil {
		opts = append(opts, admin.WithClock(ctx.Now))
	}
	return admin.NewController(ctx.Store, cat, ctx.Config.Admins(), opts...), pub, nil
}

type mutation func(bg context.Context, c *admin.Controller, caller string) (models.Appointment, error)

func (f AdminFlags) run(ctx *cli.Context, op mutation) (*admin.Controller, models.Appointment, error) {
	caller, err := f.caller(ctx)
	if err != nil {
		return nil, models.Appointment{}, err
	}
	ctrl, pub, err := f.controller(ctx)
	if err != nil {
		return nil, models.Appointment{}, err
	}
	defer pub.Close()

	appt, err := op(context.Background(), ctrl, caller)
	return ctrl, appt, err
}

type ListCmd struct {
	AdminFlags `embed:""`

	Limit int `short:"n" help:"Number of most recent appointments to show." default:"10"`
}

func (c *ListCmd) Run(ctx *cli.Context) error {
	caller, err := c.caller(ctx)
	if err != nil {
		return err
	}
	ctrl, pub, err := c.controller(ctx)
	if err != nil {
		return err
	}
	defer pub.Close()

	appts, err := ctrl.ListRecent(context.Background(), caller, c.Limit)
	if err != nil {
		return fmt.Errorf("failed to list appointments: %w", err)
	}
	if len(appts) == 0 {
		ctx.Println("No appointments yet.")
		return nil
	}

	cat, _ := ctx.Catalog()
	rows := make([][]string, 0, len(appts))
	for _, a := range appts {
		rows = append(rows, []string{
			fmt.Sprintf("#%d", a.ID),
			utils.DisplayDate(a.Date),
			a.Time,
			cat.ServiceName(a.ServiceRef),
			a.ClientName,
			a.ClientPhone,
			string(a.Status),
		})
	}
	ctx.Println(renderTable([]string{"ID", "Date", "Time", "Service", "Client", "Phone", "Status"}, rows))
	return nil
}

// renderTable prints cancelled rows dimmed.
func renderTable(headers []string, rows [][]string) string {
	statusCol := len(headers) - 1
	dim := lipgloss.NewStyle().Faint(true).Padding(0, 1)
	cell := lipgloss.NewStyle().Padding(0, 1)
	head := cell.Bold(true)

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return head
			case row >= 0 && row < len(rows) && rows[row][statusCol] == string(models.StatusCancelled):
				return dim
			default:
				return cell
			}
		}).
		String()
}

type ShowCmd struct {
	AdminFlags `embed:""`

	ID int64 `arg:"" help:"Appointment id."`
}

func (c *ShowCmd) Run(ctx *cli.Context) error {
	ctrl, appt, err := c.run(ctx, func(bg context.Context, ctrl *admin.Controller, caller string) (models.Appointment, error) {
		return ctrl.Get(bg, caller, c.ID)
	})
	if err != nil {
		return describeErr(c.ID, err)
	}
	ctx.Println(ctrl.Describe(appt))
	return nil
}

type RescheduleCmd struct {
	AdminFlags `embed:""`

	ID   int64  `arg:"" help:"Appointment id."`
	Slot string `arg:"" help:"New time label, stored as given (for example 14:30)."`
}

func (c *RescheduleCmd) Run(ctx *cli.Context) error {
	ctrl, appt, err := c.run(ctx, func(bg context.Context, ctrl *admin.Controller, caller string) (models.Appointment, error) {
		return ctrl.Reschedule(bg, caller, c.ID, c.Slot)
	})
	if err != nil {
		return describeErr(c.ID, err)
	}
	ctx.Printf("✓ Appointment #%d rescheduled to %s\n\n", appt.ID, appt.Time)
	ctx.Println(ctrl.Describe(appt))
	return nil
}

type CommentCmd struct {
	AdminFlags `embed:""`

	ID      int64  `arg:"" help:"Appointment id."`
	Comment string `arg:"" help:"Replacement comment."`
}

func (c *CommentCmd) Run(ctx *cli.Context) error {
	ctrl, appt, err := c.run(ctx, func(bg context.Context, ctrl *admin.Controller, caller string) (models.Appointment, error) {
		return ctrl.EditComment(bg, caller, c.ID, c.Comment)
	})
	if err != nil {
		return describeErr(c.ID, err)
	}
	ctx.Printf("✓ Comment of appointment #%d updated\n\n", appt.ID)
	ctx.Println(ctrl.Describe(appt))
	return nil
}

type CancelCmd struct {
	AdminFlags `embed:""`

	ID  int64 `arg:"" help:"Appointment id."`
	Yes bool  `short:"y" help:"Skip the confirmation prompt."`
}

func (c *CancelCmd) Run(ctx *cli.Context) error {
	if !c.Yes {
		ok, err := ctx.Confirm(fmt.Sprintf("Cancel appointment #%d?", c.ID))
		if err != nil {
			return err
		}
		if !ok {
			ctx.Println("Nothing changed.")
			return nil
		}
	}
	_, appt, err := c.run(ctx, func(bg context.Context, ctrl *admin.Controller, caller string) (models.Appointment, error) {
		return ctrl.Cancel(bg, caller, c.ID)
	})
	if err != nil {
		return describeErr(c.ID, err)
	}
	ctx.Printf("✓ Appointment #%d cancelled (%s %s)\n", appt.ID, utils.DisplayDate(appt.Date), appt.Time)
	return nil
}

func describeErr(id int64, err error) error {
	switch {
	case errors.Is(err, admin.ErrUnauthorized):
		return fmt.Errorf("%w: check --as against --admins", err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("appointment #%d not found", id)
	default:
		return fmt.Errorf("appointment #%d: %w", id, err)
	}
}
