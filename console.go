package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/Esaban17/impostor-app/internal/session"
	"github.com/Esaban17/impostor-app/internal/state"
)

// consoleListener is the terminal presentation: it mirrors what the
// session derives, and never feeds anything back into the machine.
type consoleListener struct {
	sess *session.Session
}

func newConsoleListener() *consoleListener {
	return &consoleListener{}
}

func (l *consoleListener) OnPhaseChange(from, to session.Phase) {
	fmt.Printf("\n== fase: %s -> %s ==\n", from, to)

	if l.sess == nil {
		return
	}

	switch to {
	case session.PhaseComment:
		l.printSubject()
	case session.PhaseResult:
		l.printResult()
	case session.PhaseFinal:
		l.printFinal()
	}
}

func (l *consoleListener) OnNotice(message string) {
	fmt.Printf("\n[aviso] %s\n", message)
}

func (l *consoleListener) OnUpdate() {}

func (l *consoleListener) printSubject() {
	room := l.sess.Store().Room()
	if room == nil {
		return
	}

	self := l.sess.Store().LocalPlayer()
	round := room.ActiveRound()
	if round == nil {
		return
	}

	if self != nil && self.IsImpostor {
		fmt.Println("ERES EL IMPOSTOR: no ves al futbolista, finge que lo conoces.")
		return
	}

	fmt.Printf("Ronda %d — futbolista: %s (%s, %s)\n",
		round.Number,
		round.Subject.Name,
		round.Subject.Position,
		round.Subject.Nationality,
	)
	fmt.Printf("Imagen: %s\n", session.SubjectImageURL(round.Subject))
}

func (l *consoleListener) printResult() {
	m := l.sess.Machine()

	if m.ResolutionPending() {
		fmt.Println("Votación cerrada, esperando el resultado...")
		return
	}

	localID := l.sess.Store().LocalPlayerID()
	room := l.sess.Store().Room()

	if reveal := m.Reveal(); reveal != nil {
		_, _, cont, end := l.sess.Round().Counters()
		view := session.ResolveReveal(room, localID, reveal, cont, end)

		fmt.Printf("¡Impostor eliminado! %s\n", view.Message)
		fmt.Printf("Futbolista revelado: %s — %s\n", view.Subject.Name, view.SubjectImage)
		fmt.Printf("¿Seguir jugando o terminar? (continue/end) [%d/%d votos]\n",
			view.ContinueVotes, view.EndVotes)
		return
	}

	if res := m.RoundResult(); res != nil {
		view := session.ResolveRound(room, localID, res)

		if view.YouWereEliminated {
			fmt.Println("Has sido eliminado. Sigues como espectador.")
		}

		verdict := "era un jugador normal"
		if view.WasImpostor {
			verdict = "¡era el impostor!"
		}
		fmt.Printf("Eliminado: %s (%s)\n", view.EliminatedName, verdict)

		for _, entry := range view.Tally {
			marker := ""
			if entry.Eliminated {
				marker = " (eliminado)"
			}
			fmt.Printf("  %s: %d votos%s\n", entry.Name, entry.Votes, marker)
		}
	}
}

func (l *consoleListener) printFinal() {
	final := l.sess.Machine().Final()
	if final == nil {
		return
	}

	view := session.ResolveFinal(l.sess.Store().Room(), final)

	fmt.Printf("Juego terminado. Ganador: %s — %s\n", view.WinnerLabel, view.ReasonText)
	for _, entry := range view.History {
		name := entry.EliminatedName
		if name == "" {
			name = "sin eliminación"
		}
		fmt.Printf("  Ronda %d: %s\n", entry.RoundNumber, name)
	}
}

// runConsole reads user intents from stdin until EOF or quit.
func runConsole(appState *state.AppState) {
	sess := appState.Sess

	fmt.Println("Impostor Fútbol — comandos: create <nombre> | join <nombre> <código> | start | say <texto> | vote <jugador> | next | continue | end | status | quit")

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		verb, args := fields[0], fields[1:]

		if verb == "quit" {
			return
		}

		if err := dispatch(sess, verb, args, strings.TrimSpace(strings.TrimPrefix(line, verb))); err != nil {
			fmt.Printf("[error] %v\n", err)
		}
	}
}

func dispatch(sess *session.Session, verb string, args []string, rest string) error {
	ctx := context.Background()

	switch verb {
	case "create":
		if len(args) < 1 {
			return fmt.Errorf("uso: create <nombre>")
		}
		if err := sess.CreateRoom(ctx, args[0]); err != nil {
			return err
		}
		room := sess.Store().Room()
		fmt.Printf("Sala creada. Código: %s\n", room.Code)
		return nil

	case "join":
		if len(args) < 2 {
			return fmt.Errorf("uso: join <nombre> <código>")
		}
		if err := sess.JoinRoom(ctx, args[0], args[1]); err != nil {
			return err
		}
		fmt.Println("Unido a la sala.")
		return nil

	case "start":
		return sess.Dispatcher().StartGame(ctx)

	case "say":
		return sess.Dispatcher().SubmitComment(rest)

	case "vote":
		if len(args) < 1 {
			return fmt.Errorf("uso: vote <jugador>")
		}
		return sess.Dispatcher().CastVote(resolveSuspect(sess, args[0]))

	case "next":
		return sess.Dispatcher().ConfirmNextRound()

	case "continue":
		return sess.Dispatcher().PollContinue()

	case "end":
		return sess.Dispatcher().PollEnd()

	case "status":
		printStatus(sess)
		return nil

	default:
		return fmt.Errorf("comando desconocido: %s", verb)
	}
}

// resolveSuspect accepts either a player id or a display name.
func resolveSuspect(sess *session.Session, arg string) string {
	room := sess.Store().Room()
	if room == nil {
		return arg
	}
	for _, p := range room.Players {
		if strings.EqualFold(p.Name, arg) {
			return p.ID
		}
	}
	return arg
}

func printStatus(sess *session.Session) {
	room := sess.Store().Room()
	if room == nil {
		fmt.Println("Sin sala. Usa create o join.")
		return
	}

	fmt.Printf("Sala %s — fase %s — %ds restantes\n",
		room.Code, sess.Machine().Phase(), sess.Countdown().Remaining())

	localID := sess.Store().LocalPlayerID()
	for i, p := range room.Players {
		tag := ""
		if i == 0 {
			tag = " [host]"
		}
		if p.ID == localID {
			tag += " (tú)"
		}
		if p.Eliminated {
			tag += " (eliminado)"
		}
		fmt.Printf("  %s — %s%s\n", p.ID, p.Name, tag)
	}

	for i, c := range sess.Round().Comments() {
		fmt.Printf("  #%d %s: %q\n", i+1, c.AuthorName, c.Text)
	}
}
