package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"go-chat-client/internal/api"
	"go-chat-client/internal/channel"
	"go-chat-client/internal/directory"
	"go-chat-client/internal/notify"
	"go-chat-client/internal/presence"
	"go-chat-client/internal/session"
	"go-chat-client/internal/store"
	"go-chat-client/internal/voice"
)

// terminalNotifier renders desktop-style notifications on stdout.
type terminalNotifier struct{}

func (terminalNotifier) Notify(title, body string) {
	fmt.Printf("\n🔔 %s: %s\n", title, body)
}

// terminalPrompter asks for notification permission once, on first use.
type terminalPrompter struct {
	in    *bufio.Scanner
	state notify.Permission
}

func (p *terminalPrompter) Permission() notify.Permission { return p.state }

func (p *terminalPrompter) Request() notify.Permission {
	fmt.Print("Allow notifications? [y/n]: ")
	if p.in.Scan() && strings.EqualFold(strings.TrimSpace(p.in.Text()), "y") {
		p.state = notify.PermissionGranted
	} else {
		p.state = notify.PermissionDenied
	}
	return p.state
}

type app struct {
	in     *bufio.Scanner
	api    *api.Client
	server string

	manager  *session.Manager
	sess     session.Session
	conn     *channel.Conn
	tracker  *presence.Tracker
	dir      *directory.Directory
	chat     *store.Store
	notify   *notify.Dispatcher
	recorder *voice.Recorder

	// down is signaled when the session ends underneath the UI, by expiry
	// or by losing the channel.
	down chan struct{}
}

func main() {
	defaultServer := os.Getenv("SERVER_URL")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	server := flag.String("server", defaultServer, "chat server base URL")
	flag.Parse()

	a := &app{
		in:     bufio.NewScanner(os.Stdin),
		api:    api.NewClient(*server),
		server: *server,
	}
	a.in.Buffer(make([]byte, 1<<20), 1<<20)

	for {
		if !a.authMenu() {
			return
		}
		a.dashboard()
		a.teardown()
	}
}

// authMenu loops until a session is established or the user quits.
// Returns false on quit.
func (a *app) authMenu() bool {
	for {
		fmt.Println("\n=== go-chat ===")
		fmt.Println("1) login  2) sign up  3) quit")
		switch a.prompt("> ") {
		case "1":
			if a.login() {
				return true
			}
		case "2":
			a.signup()
		case "3":
			return false
		}
	}
}

func (a *app) login() bool {
	identifier := a.prompt("username or phone: ")
	password := a.prompt("password: ")

	a.down = make(chan struct{}, 1)
	a.manager = session.NewManager(a.api, func(token, userID string, onDisconnect func()) (*channel.Conn, error) {
		return channel.Dial(a.server, token, userID, onDisconnect)
	})
	// Printed from the callback so the notice shows immediately, not at
	// the next prompt.
	endSession := func(msg string) {
		fmt.Printf("\n%s\n", msg)
		select {
		case a.down <- struct{}{}:
		default:
		}
	}
	a.manager.OnExpired = func() { endSession("session expired, please log in again") }
	a.manager.OnConnectionLost = func() { endSession("connection lost, please log in again") }

	conn, sess, err := a.manager.Login(context.Background(), identifier, password)
	if err != nil {
		fmt.Printf("login failed: %v\n", err)
		return false
	}
	a.conn = conn
	a.sess = sess

	a.notify = notify.NewDispatcher(conn, terminalNotifier{}, &terminalPrompter{in: a.in})
	a.notify.Start()
	a.notify.Arm()

	a.tracker = presence.NewTracker(conn)
	a.tracker.Start()

	a.dir = directory.New(conn, a.api, a.tracker)
	if err := a.dir.Load(context.Background(), sess.UserID); err != nil {
		fmt.Printf("could not load chats: %v\n", err)
	}

	fmt.Printf("logged in as %s (session until %s)\n", sess.UserID, sess.ExpiresAt.Format("15:04"))
	return true
}

func (a *app) signup() {
	req := &api.RegisterRequest{
		Name:     a.prompt("name: "),
		Username: a.prompt("username: "),
		PhoneNo:  a.prompt("phone: "),
		About:    a.prompt("about (optional): "),
		Password: a.prompt("password: "),
	}
	if err := a.api.Register(context.Background(), req); err != nil {
		fmt.Printf("sign up failed: %v\n", err)
		return
	}
	fmt.Println("registered, now log in")
}

func (a *app) dashboard() {
	for {
		select {
		case <-a.down:
			return
		default:
		}

		chats := a.dir.Chats()
		fmt.Println("\n--- chats ---")
		if len(chats) == 0 {
			fmt.Println("(none yet)")
		}
		for i, c := range chats {
			marker := " "
			if c.Status == "online" {
				marker = "*"
			}
			unread := ""
			if c.UnreadMessages > 0 {
				unread = fmt.Sprintf(" [%d unread]", c.UnreadMessages)
			}
			fmt.Printf("%d) %s%s %s%s  %s\n", i+1, marker, c.Name, c.LastMessage, unread, c.LastMessageTime)
		}
		fmt.Println("commands: <n> open chat, new <phone>, contacts, logout")

		input := a.prompt("> ")
		switch {
		case input == "logout":
			return
		case input == "contacts":
			for _, c := range a.dir.Contacts() {
				fmt.Printf("  %s  %s  %s\n", c.Name, c.PhoneNo, c.About)
			}
		case strings.HasPrefix(input, "new "):
			phone := strings.TrimSpace(strings.TrimPrefix(input, "new "))
			chatID, err := a.dir.FindOrCreateChat(context.Background(), phone)
			if err != nil {
				fmt.Printf("could not start chat: %v\n", err)
				continue
			}
			a.openChat(chatID)
		default:
			n, err := strconv.Atoi(input)
			if err != nil || n < 1 || n > len(chats) {
				continue
			}
			a.openChat(chats[n-1].ChatID)
		}
	}
}

func (a *app) openChat(chatID string) {
	a.chat = store.New(a.conn, a.api, a.sess.UserID, a.confirm)
	if err := a.chat.LoadConversation(context.Background(), chatID); err != nil {
		fmt.Printf("could not open chat: %v\n", err)
		return
	}
	defer func() {
		a.chat.Close()
		a.chat = nil
	}()

	partner := a.chat.Partner()
	fmt.Printf("\n--- chat with %s ---\n", partner.Name)
	a.renderMessages()
	fmt.Println("commands: text to send, /refresh, /voice <file>, /delete <msg id>, /back")

	for {
		select {
		case <-a.down:
			return
		default:
		}

		input := a.prompt("msg> ")
		switch {
		case input == "/back":
			return
		case input == "/refresh":
			a.renderMessages()
		case strings.HasPrefix(input, "/voice "):
			a.sendVoice(strings.TrimSpace(strings.TrimPrefix(input, "/voice ")))
		case strings.HasPrefix(input, "/delete "):
			id := strings.TrimSpace(strings.TrimPrefix(input, "/delete "))
			if err := a.chat.DeleteMessage(id); err != nil {
				fmt.Printf("delete failed: %v\n", err)
			}
		default:
			if err := a.chat.SendText(input); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
	}
}

func (a *app) renderMessages() {
	online := ""
	if a.chat.PartnerOnline() {
		online = " (online)"
	}
	fmt.Printf("[%s%s]\n", a.chat.Partner().Name, online)
	for _, m := range a.chat.Messages() {
		who := m.SenderName
		if m.SenderID == a.sess.UserID {
			who = "me"
		}
		body := m.MessageText
		if m.VoiceMessage != "" {
			body = "(voice message)"
		}
		read := ""
		if m.SenderID == a.sess.UserID && m.IsRead {
			read = " ✓✓"
		}
		fmt.Printf("  [%s] %s: %s%s  (%s)\n", m.Timestamp.Format("15:04"), who, body, read, m.ID)
	}
}

// sendVoice records from an audio file source and ships the captured bytes.
func (a *app) sendVoice(path string) {
	a.recorder = voice.NewRecorder(voice.FileSource(path))
	if err := a.recorder.Start(); err != nil {
		fmt.Printf("recording failed: %v\n", err)
		return
	}
	a.prompt("recording... press enter to stop ")
	audio, err := a.recorder.Stop()
	if err != nil {
		fmt.Printf("recording failed: %v\n", err)
		return
	}
	if err := a.chat.SendVoice(audio); err != nil {
		fmt.Printf("send failed: %v\n", err)
	}
}

func (a *app) confirm(title, text string) bool {
	fmt.Printf("%s\n%s\n", title, text)
	return strings.EqualFold(a.prompt("confirm? [y/n]: "), "y")
}

func (a *app) teardown() {
	if a.chat != nil {
		a.chat.Close()
		a.chat = nil
	}
	if a.dir != nil {
		a.dir.Close()
		a.dir = nil
	}
	if a.tracker != nil {
		a.tracker.Close()
		a.tracker = nil
	}
	if a.notify != nil {
		a.notify.Close()
		a.notify = nil
	}
	if a.manager != nil {
		a.manager.Logout()
		a.manager = nil
	}
	a.api.SetToken("")
	a.conn = nil
}

func (a *app) prompt(label string) string {
	fmt.Print(label)
	if !a.in.Scan() {
		if err := a.in.Err(); err != nil {
			log.Fatalf("stdin: %v", err)
		}
		os.Exit(0)
	}
	return strings.TrimSpace(a.in.Text())
}
