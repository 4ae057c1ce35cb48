package dispatch

import (
	"github.com/ircultra/gateway/internal/command"
	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/interpreter"
	"github.com/ircultra/gateway/internal/store"
)

// CommandExec implements §4.7's command_exec event: slash-prefixed input is
// parsed and delegated to the Command Interpreter; anything else is treated
// as plain TEXT to the supplied (or session's current) channel.
func (d *Dispatcher) CommandExec(sess *hub.Session, raw, contextChannel string) {
	if contextChannel != "" {
		sess.ContextChannel = contextChannel
	}

	parsed := command.Parse(raw)
	if parsed == nil {
		channel := sess.ContextChannel
		if channel == "" {
			sess.ServerError(CodeBadRequest, "no channel to send to")
			return
		}
		if err := d.SendChannelMessage(sess, channel, raw, store.KindText, "", ""); err != nil {
			sess.ServerError(errCode(err), err.Error())
		}
		return
	}

	if d.metrics != nil {
		d.metrics.CommandExecuted(parsed.Name)
	}
	interpreter.Execute(sess, parsed, d)
}
