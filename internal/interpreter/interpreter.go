package interpreter

import (
	"fmt"
	"strings"
	"time"

	"github.com/ircultra/gateway/internal/command"
	"github.com/ircultra/gateway/internal/hub"
	"github.com/ircultra/gateway/internal/store"
	"github.com/ircultra/gateway/internal/validate"
)

const muteDuration = 10 * time.Minute

// helpText is the static command summary for /help (§4.8).
var helpText = []string{
	"/help, /nick, /whoami, /away, /back, /quit",
	"/join #c, /part [#c [reason]], /list, /names [#c], /who, /whois <alias>",
	"/topic #c [text], /mode #c +X|-X",
	"/op|/deop|/voice|/devoice <alias> [#c]",
	"/ban|/unban <alias> #c [reason], /mute|/unmute <alias> #c, /kick <alias> #c [reason]",
	"/invite <alias> #c",
	"/msg <alias> <text>, /me <action>, /notice <text>, /reply <msgId> <text>, /thread <threadId> <text>",
	"/ignore|/unignore <alias>, /search <term>, /pin|/unpin|/clear",
	"/bot list, /bot run <botId> [args...]",
}

// Execute runs one parsed command against r on behalf of sess. It never
// returns an error to the caller: every failure is surfaced to sess as a
// server_error or NOTICE, per §7 ("handlers never abort the session on
// domain errors").
func Execute(sess *hub.Session, p *command.Parsed, r Runner) {
	if p.Name == "" {
		sess.ServerError("BAD_REQUEST", "empty command")
		return
	}

	switch p.Name {
	case "help":
		notice(sess, strings.Join(helpText, "\n"))

	case "nick":
		if len(p.Args) < 1 {
			sess.ServerError("BAD_REQUEST", "usage: /nick <alias>")
			return
		}
		r.ClaimAlias(sess, p.Args[0])

	case "whoami":
		notice(sess, fmt.Sprintf("alias=%s ip=%s device=%s", sess.Alias, sess.IP, sess.DeviceID))

	case "away":
		r.SetStatus(sess, hub.StatusAway)
		notice(sess, "marked away")

	case "back":
		r.SetStatus(sess, hub.StatusOnline)
		notice(sess, "marked back")

	case "quit":
		r.Quit(sess)

	case "join":
		if len(p.Args) < 1 {
			sess.ServerError("BAD_REQUEST", "usage: /join #channel")
			return
		}
		if err := r.JoinChannel(sess, p.Args[0]); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "part":
		channel := sess.ContextChannel
		reason := ""
		if len(p.Args) >= 1 {
			channel = p.Args[0]
		}
		if len(p.Args) >= 2 {
			reason = strings.Join(p.Args[1:], " ")
		}
		if channel == "" {
			sess.ServerError("BAD_REQUEST", "no channel to part")
			return
		}
		if err := r.PartChannel(sess, channel, reason); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "list":
		rows := r.ListChannelSummaries()
		lines := make([]string, 0, len(rows))
		for _, c := range rows {
			lines = append(lines, fmt.Sprintf("%s (%d members) %s", c.Name, c.MemberCount, c.Topic))
		}
		notice(sess, strings.Join(lines, "\n"))

	case "names":
		channel := sess.ContextChannel
		if len(p.Args) >= 1 {
			channel = p.Args[0]
		}
		members, err := r.ListMembers(channel)
		if err != nil {
			sess.ServerError(errKey(err), err.Error())
			return
		}
		lines := make([]string, 0, len(members))
		for _, m := range members {
			lines = append(lines, fmt.Sprintf("%s[%s]", m.Alias, m.Role))
		}
		notice(sess, strings.Join(lines, " "))

	case "who":
		notice(sess, strings.Join(r.ListOnlineAliases(), " "))

	case "whois":
		if len(p.Args) < 1 {
			sess.ServerError("BAD_REQUEST", "usage: /whois <alias>")
			return
		}
		w, err := r.Whois(p.Args[0])
		if err != nil {
			sess.ServerError("BAD_REQUEST", "offline")
			return
		}
		notice(sess, fmt.Sprintf("%s status=%s channels=%s", w.Alias, w.Status, strings.Join(w.Channels, ",")))

	case "topic":
		if len(p.Args) < 1 {
			sess.ServerError("BAD_REQUEST", "usage: /topic #channel [text]")
			return
		}
		channel := p.Args[0]
		if len(p.Args) == 1 {
			topic, err := r.GetTopic(channel)
			if err != nil {
				sess.ServerError(errKey(err), err.Error())
				return
			}
			notice(sess, topic)
			return
		}
		text := strings.Join(p.Args[1:], " ")
		if _, err := r.SetTopic(sess, channel, text); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "mode":
		if len(p.Args) < 2 {
			sess.ServerError("BAD_REQUEST", "usage: /mode #channel +X|-X")
			return
		}
		if _, err := r.SetMode(sess, p.Args[0], p.Args[1]); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "op", "deop", "voice", "devoice":
		if len(p.Args) < 1 {
			sess.ServerError("BAD_REQUEST", "usage: /"+p.Name+" <alias> [#channel]")
			return
		}
		channel := sess.ContextChannel
		if len(p.Args) >= 2 {
			channel = p.Args[1]
		}
		if err := r.SetRole(sess, channel, p.Args[0], p.Name); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "ban", "unban":
		if len(p.Args) < 2 {
			sess.ServerError("BAD_REQUEST", "usage: /"+p.Name+" <alias> #channel [reason]")
			return
		}
		target, channel := p.Args[0], p.Args[1]
		reason := ""
		if len(p.Args) >= 3 {
			reason = strings.Join(p.Args[2:], " ")
		}
		var err error
		if p.Name == "ban" {
			err = r.Ban(sess, channel, target, reason)
		} else {
			err = r.Unban(sess, channel, target)
		}
		if err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "mute", "unmute":
		if len(p.Args) < 2 {
			sess.ServerError("BAD_REQUEST", "usage: /"+p.Name+" <alias> #channel")
			return
		}
		target, channel := p.Args[0], p.Args[1]
		var err error
		if p.Name == "mute" {
			err = r.Mute(sess, channel, target, muteDuration)
		} else {
			err = r.Unmute(sess, channel, target)
		}
		if err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "kick":
		if len(p.Args) < 2 {
			sess.ServerError("BAD_REQUEST", "usage: /kick <alias> #channel [reason]")
			return
		}
		reason := ""
		if len(p.Args) >= 3 {
			reason = strings.Join(p.Args[2:], " ")
		}
		if err := r.Kick(sess, p.Args[1], p.Args[0], reason); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "invite":
		if len(p.Args) < 2 {
			sess.ServerError("BAD_REQUEST", "usage: /invite <alias> #channel")
			return
		}
		if err := r.Invite(sess, p.Args[1], p.Args[0]); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "msg":
		if len(p.Args) < 1 {
			sess.ServerError("BAD_REQUEST", "usage: /msg <alias> <text>")
			return
		}
		text := strings.TrimPrefix(p.RawArgs, p.Args[0])
		text = strings.TrimLeft(text, " \t")
		if err := r.DirectMessagePlain(sess, p.Args[0], text); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "me":
		if sess.ContextChannel == "" {
			sess.ServerError("BAD_REQUEST", "no current channel")
			return
		}
		if err := r.SendChannelMessage(sess, sess.ContextChannel, p.RawArgs, store.KindAction, "", ""); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "notice":
		if sess.ContextChannel == "" {
			sess.ServerError("BAD_REQUEST", "no current channel")
			return
		}
		if err := r.SendChannelMessage(sess, sess.ContextChannel, p.RawArgs, store.KindNotice, "", ""); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "reply":
		if len(p.Args) < 2 || sess.ContextChannel == "" {
			sess.ServerError("BAD_REQUEST", "usage: /reply <msgId> <text>")
			return
		}
		text := strings.TrimLeft(strings.TrimPrefix(p.RawArgs, p.Args[0]), " \t")
		if err := r.SendChannelMessage(sess, sess.ContextChannel, text, store.KindText, p.Args[0], ""); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "thread":
		if len(p.Args) < 2 || sess.ContextChannel == "" {
			sess.ServerError("BAD_REQUEST", "usage: /thread <threadId> <text>")
			return
		}
		text := strings.TrimLeft(strings.TrimPrefix(p.RawArgs, p.Args[0]), " \t")
		if err := r.SendChannelMessage(sess, sess.ContextChannel, text, store.KindText, "", p.Args[0]); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "ignore":
		if len(p.Args) < 1 {
			sess.ServerError("BAD_REQUEST", "usage: /ignore <alias>")
			return
		}
		sess.Ignored[p.Args[0]] = true

	case "unignore":
		if len(p.Args) < 1 {
			sess.ServerError("BAD_REQUEST", "usage: /unignore <alias>")
			return
		}
		delete(sess.Ignored, p.Args[0])

	case "search":
		if sess.ContextChannel == "" || p.RawArgs == "" {
			sess.ServerError("BAD_REQUEST", "usage: /search <term>")
			return
		}
		results := r.Search(sess.ContextChannel, p.RawArgs, 8)
		lines := make([]string, 0, len(results))
		for _, m := range results {
			if m.Body != nil {
				lines = append(lines, fmt.Sprintf("%s: %s", m.SenderAlias, *m.Body))
			}
		}
		notice(sess, strings.Join(lines, "\n"))

	case "pin", "unpin":
		if len(p.Args) < 1 || sess.ContextChannel == "" {
			sess.ServerError("BAD_REQUEST", "usage: /"+p.Name+" <messageId>")
			return
		}
		var err error
		if p.Name == "pin" {
			err = r.Pin(sess, sess.ContextChannel, p.Args[0])
		} else {
			err = r.Unpin(sess, sess.ContextChannel, p.Args[0])
		}
		if err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "clear":
		if sess.ContextChannel == "" {
			sess.ServerError("BAD_REQUEST", "no current channel")
			return
		}
		if _, err := r.Clear(sess, sess.ContextChannel); err != nil {
			sess.ServerError(errKey(err), err.Error())
		}

	case "bot":
		if len(p.Args) < 1 {
			sess.ServerError("BAD_REQUEST", "usage: /bot list|run <botId> [args...]")
			return
		}
		switch p.Args[0] {
		case "list":
			bots := r.BotList()
			lines := make([]string, 0, len(bots))
			for _, b := range bots {
				lines = append(lines, b.BotID+" v"+b.Version)
			}
			notice(sess, strings.Join(lines, "\n"))
		case "run":
			if len(p.Args) < 2 || sess.ContextChannel == "" {
				sess.ServerError("BAD_REQUEST", "usage: /bot run <botId> [args...]")
				return
			}
			if err := r.BotInvoke(sess, p.Args[1], "run", p.Args[2:], sess.ContextChannel); err != nil {
				sess.ServerError(errKey(err), err.Error())
			}
		default:
			sess.ServerError("BAD_REQUEST", "unknown /bot subcommand")
		}

	default:
		sess.ServerError("BAD_REQUEST", "unknown command: /"+p.Name)
	}
}

// notice sends an ephemeral, non-persisted NOTICE-kind message_event to the
// originating session only — command replies never enter channel history.
func notice(sess *hub.Session, body string) {
	sess.Send("message_event", map[string]interface{}{
		"type": "CREATED",
		"scope": map[string]string{
			"kind":    "channel",
			"channel": sess.ContextChannel,
		},
		"message": map[string]interface{}{
			"senderAlias": "server",
			"kind":        store.KindNotice,
			"body":        body,
			"timestamp":   timeNow(),
		},
	})
}

func timeNow() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func errKey(err error) string {
	switch err {
	case store.ErrChannelNotFound:
		return "CHANNEL_NOT_FOUND"
	case store.ErrUnauthorized:
		return "UNAUTHORIZED"
	case validate.ErrEmpty, validate.ErrTooLong, validate.ErrControlChar, validate.ErrBadChannel:
		return "BAD_REQUEST"
	default:
		return "FORBIDDEN"
	}
}
