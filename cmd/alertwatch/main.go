// Command alertwatch runs one alert session against a running API and prints the
// grouped alert view whenever it changes. Lines read from stdin drive the session:
//
//	read <alert_id>
//	delete <alert_id>
//	open <alert_id>    act as if the alert's notification was tapped
//	refresh
//	quit
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/linesmerrill/planner-alerts/client"
	"github.com/linesmerrill/planner-alerts/config"
	"github.com/linesmerrill/planner-alerts/feed"
	"github.com/linesmerrill/planner-alerts/models"
	"github.com/linesmerrill/planner-alerts/notify"
	"github.com/linesmerrill/planner-alerts/push"
	"github.com/linesmerrill/planner-alerts/session"
)

func main() {
	envErr := godotenv.Load()
	conf := config.New()
	if envErr != nil {
		zap.S().Debugw("no .env file found, using system environment variables")
	}

	apiURL := flag.String("api", conf.BaseURL, "base url of the alert API")
	token := flag.String("token", os.Getenv("ALERTWATCH_TOKEN"), "bearer token for the user")
	user := flag.String("user", "", "owner id of the session")
	device := flag.Bool("device", false, "behave like a physical device and register for push")
	platform := flag.String("platform", string(models.PlatformAndroid), "device platform (ios or android)")
	nativeToken := flag.String("device-token", "", "native APNs/FCM token used to issue the push token")
	remote := flag.Bool("push", false, "deliver notifications through Expo instead of the terminal")
	flag.Parse()

	if *apiURL == "" || *token == "" || *user == "" {
		flag.Usage()
		os.Exit(2)
	}
	plat, err := models.ParsePlatform(*platform)
	if err != nil {
		zap.S().Fatalw("invalid platform", "platform", *platform, "error", err)
	}

	c := client.New(*apiURL, *token)
	expo := push.NewExpoClient(conf.ExpoAccessToken)

	host := &push.StaticHost{
		Device:      *device,
		OS:          plat,
		Status:      push.PermissionUndetermined,
		OnRequest:   push.PermissionGranted,
		NativeToken: *nativeToken,
	}
	registrar := &push.Registrar{Host: host, Issuer: expo, ProjectID: conf.ExpoProjectID}

	var current atomic.Pointer[session.Session]
	var displayer notify.Displayer = &notify.LogDisplayer{Out: os.Stdout}
	if *remote {
		displayer = notify.ExpoDisplayer{Sender: expo, Token: func() string {
			if s := current.Load(); s != nil {
				return s.Token()
			}
			return ""
		}}
	}
	notifier := notify.NewScheduler(hostDisplayer{next: displayer, host: host}, rate.Every(time.Second), 5)
	defer notifier.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := session.Open(ctx, session.Deps{
		Store:     c,
		Source:    feed.WebSocketSource{URL: c.FeedURL(), Token: *token},
		Registrar: registrar,
		Tokens:        c,
		Notifier:      notifier,
		Notifications: host,
	}, session.Options{
		OwnerID:     *user,
		RefreshSpec: conf.RefreshSpec,
		OnNotificationResponse: func(resp push.Response) {
			// opening a notification reads its alert
			id, ok := resp.Notification.Data["alert_id"].(string)
			s := current.Load()
			if !ok || s == nil {
				return
			}
			go func() {
				if err := s.MarkRead(ctx, id); err != nil {
					zap.S().Errorw("failed to mark opened alert read", "alert_id", id, "error", err)
				}
			}()
		},
	})
	if err != nil {
		zap.S().Fatalw("failed to open session", "error", err)
	}
	defer sess.Close()
	current.Store(sess)

	if err := sess.LoadErr(); err != nil {
		zap.S().Warnw("initial load failed, showing what the feed delivers", "error", err)
	}
	render(os.Stdout, sess)

	lines := make(chan string)
	go scan(os.Stdin, lines)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Changes():
			render(os.Stdout, sess)
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := command(ctx, sess, host, line); quit {
				return
			}
		}
	}
}

func command(ctx context.Context, sess *session.Session, host *push.StaticHost, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	var err error
	switch fields[0] {
	case "quit", "exit":
		return true
	case "refresh":
		err = sess.Refresh(ctx)
	case "open":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stdout, "usage: open <alert_id>")
			return false
		}
		host.Respond(push.Response{Notification: push.Notification{Data: map[string]interface{}{"alert_id": fields[1]}}})
	case "read", "delete":
		if len(fields) != 2 {
			fmt.Fprintf(os.Stdout, "usage: %s <alert_id>\n", fields[0])
			return false
		}
		if fields[0] == "read" {
			err = sess.MarkRead(ctx, fields[1])
		} else {
			err = sess.Delete(ctx, fields[1])
		}
	default:
		fmt.Fprintf(os.Stdout, "unknown command %q\n", fields[0])
		return false
	}
	if err != nil {
		zap.S().Errorw("command failed", "command", fields[0], "error", err)
	}
	return false
}

func render(w io.Writer, sess *session.Session) {
	groups := sess.Groups()
	if len(groups) == 0 {
		fmt.Fprintln(w, "no alerts")
		return
	}
	for _, g := range groups {
		fmt.Fprintf(w, "%s\n", g.Label)
		for _, a := range g.Alerts {
			mark := "*"
			if a.IsRead {
				mark = " "
			}
			if len(sess.Pending(a.ID)) > 0 {
				mark = "~"
			}
			fmt.Fprintf(w, "  %s %s  %s  %s\n", mark, a.ID, a.CreatedAt.Local().Format("15:04"), a.Message)
		}
	}
}

// hostDisplayer hands every displayed notification to the host, the way a device reports
// notifications it showed while the app was in the foreground.
type hostDisplayer struct {
	next notify.Displayer
	host *push.StaticHost
}

func (d hostDisplayer) Display(ctx context.Context, n notify.Notification) error {
	if err := d.next.Display(ctx, n); err != nil {
		return err
	}
	d.host.Receive(push.Notification{ID: n.ID, Title: n.Title, Body: n.Body, Data: n.Data})
	return nil
}

func scan(r io.Reader, out chan<- string) {
	defer close(out)
	s := bufio.NewScanner(r)
	for s.Scan() {
		out <- s.Text()
	}
}

