package system

import (
	"context"
	"fmt"

	"github.com/julianstephens/salonbot/internal/allocator"
	"github.com/julianstephens/salonbot/internal/cli"
	"github.com/julianstephens/salonbot/internal/console"
	"github.com/julianstephens/salonbot/internal/conversation"
	"github.com/julianstephens/salonbot/internal/notifier"
)

var runConsole = console.Run

// ConsoleCmd runs the booking conversation in the terminal against the
// configured store. Admin notifications go to the log.
type ConsoleCmd struct {
	As   string `help:"Client id to chat as. Use an administrator id to reach the admin panel." default:"console"`
	Name string `help:"Display name used in greetings." default:"Guest"`

	cli.EventFlags `embed:""`
}

func (c *ConsoleCmd) Run(ctx *cli.Context) error {
	cat, err := ctx.Catalog()
	if err != nil {
		return err
	}
	pub, err := c.Publisher()
	if err != nil {
		return err
	}
	defer pub.Close()

	fanout := notifier.NewFanout(notifier.Log{}, ctx.Config.Admins(), cat)
	rt, err := ctx.NewRuntime(cli.RuntimeOptions{
		Publisher: pub,
		Listeners: []allocator.Listener{fanout},
	})
	if err != nil {
		return err
	}

	caller := conversation.Caller{ID: c.As, Name: c.Name}
	err = runConsole(context.Background(), rt.Router, caller)
	fanout.Wait()
	if err != nil {
		return fmt.Errorf("console failed: %w", err)
	}
	return nil
}
