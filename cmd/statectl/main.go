package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"sort"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jose-valero/tribunaldo-bot/internal/domain"
	"github.com/jose-valero/tribunaldo-bot/internal/infra/storage"
)

// store es lo que statectl necesita de cualquiera de los dos backends.
type store interface {
	LoadAll(ctx context.Context) (domain.State, error)
	Release(ctx context.Context, memberID string) (bool, error)
}

type options struct {
	backend     string
	databaseURL string
	badgerDir   string
}

// open abre el backend. Con write, en Postgres toma el lock de dueño: si el
// bot está corriendo, su próximo SaveAll desharía el cambio. Badger ya no
// abre un directorio que el bot tiene tomado.
func (o options) open(ctx context.Context, write bool) (store, func(), error) {
	switch o.backend {
	case "badger":
		b, err := storage.OpenBadger(o.badgerDir)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	case "postgres":
		if o.databaseURL == "" {
			return nil, nil, fmt.Errorf("falta --database-url o DATABASE_URL")
		}
		db, err := storage.Open(ctx, o.databaseURL)
		if err != nil {
			return nil, nil, err
		}
		if !write {
			return storage.NewStateRepo(db), func() { _ = db.Close() }, nil
		}
		unlock, err := storage.Claim(ctx, db)
		if err != nil {
			_ = db.Close()
			if errors.Is(err, storage.ErrStateClaimed) {
				return nil, nil, errors.New("el bot está corriendo: apagalo antes de modificar el estado")
			}
			return nil, nil, err
		}
		return storage.NewStateRepo(db), func() { unlock(); _ = db.Close() }, nil
	}
	return nil, nil, fmt.Errorf("backend inválido: %q", o.backend)
}

type exitView struct {
	MemberID string    `json:"member_id"`
	ExitAt   time.Time `json:"exit_at"`
}

type rolesView struct {
	MemberID string   `json:"member_id"`
	RoleIDs  []string `json:"role_ids"`
}

type dumpView struct {
	Exits        []exitView  `json:"exit_records"`
	RemovedRoles []rolesView `json:"removed_roles"`
}

func toView(st domain.State) dumpView {
	out := dumpView{Exits: []exitView{}, RemovedRoles: []rolesView{}}
	for _, r := range st.Exits {
		out.Exits = append(out.Exits, exitView{MemberID: r.MemberID, ExitAt: r.ExitAt.UTC()})
	}
	for _, r := range st.RemovedRoles {
		out.RemovedRoles = append(out.RemovedRoles, rolesView{MemberID: r.MemberID, RoleIDs: r.RoleIDs})
	}
	sort.Slice(out.Exits, func(i, j int) bool { return out.Exits[i].MemberID < out.Exits[j].MemberID })
	sort.Slice(out.RemovedRoles, func(i, j int) bool { return out.RemovedRoles[i].MemberID < out.RemovedRoles[j].MemberID })
	return out
}

func dump(ctx context.Context, s store, w io.Writer) error {
	st, err := s.LoadAll(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(toView(st))
}

func release(ctx context.Context, s store, w io.Writer, memberID string) error {
	ok, err := s.Release(ctx, memberID)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(w, "member %s: sin registros\n", memberID)
		return nil
	}
	fmt.Fprintf(w, "member %s: registros borrados\n", memberID)
	return nil
}

func rootCommand() *cobra.Command {
	opts := options{
		backend:     envOr("STATE_BACKEND", "postgres"),
		databaseURL: os.Getenv("DATABASE_URL"),
		badgerDir:   envOr("BADGER_DIR", "data/state"),
	}

	root := &cobra.Command{
		Use:           "statectl",
		Short:         "Inspecciona o limpia el estado persistido del modo foco (con el bot apagado)",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.backend, "backend", opts.backend, "postgres | badger")
	root.PersistentFlags().StringVar(&opts.databaseURL, "database-url", opts.databaseURL, "DSN de Postgres")
	root.PersistentFlags().StringVar(&opts.badgerDir, "badger-dir", opts.badgerDir, "directorio de Badger")

	root.AddCommand(&cobra.Command{
		Use:   "dump",
		Short: "Imprime exit records y cargos guardados como JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, closeFn, err := opts.open(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer closeFn()
			return dump(cmd.Context(), s, cmd.OutOrStdout())
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "release <member-id>",
		Short: "Borra el exit record y los cargos guardados de un miembro",
		Long: "Borra el exit record y los cargos guardados de un miembro.\n" +
			"Apagá el bot antes: guarda todo el estado en cada cambio y desharía el borrado.\n" +
			"Con Postgres se rechaza mientras el bot tenga el lock de dueño.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, closeFn, err := opts.open(cmd.Context(), true)
			if err != nil {
				return err
			}
			defer closeFn()
			return release(cmd.Context(), s, cmd.OutOrStdout(), args[0])
		},
	})
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func main() {
	_ = godotenv.Load()
	log.SetFlags(0)
	if err := rootCommand().ExecuteContext(context.Background()); err != nil {
		log.Fatalf("statectl: %v", err)
	}
}
