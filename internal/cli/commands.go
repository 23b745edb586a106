package cli

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/goforj/replaycache"
	"github.com/goforj/replaycache/pagecache"
)

func newDemoCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Flush the store, store sample values, verify them and replay the calls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			ctx := cmd.Context()
			c, err := s.cache(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			samples := []replaycache.Value{
				replaycache.Bytes("foo"),
				replaycache.Integer(123),
				replaycache.Text("bar"),
				replaycache.Float(1.5),
			}
			for _, v := range samples {
				key, err := c.StoreCtx(ctx, v)
				if err != nil {
					return err
				}
				if err := verify(cmd, c, key, v); err != nil {
					return err
				}
				fmt.Fprintf(out, "stored %s under %s\n", v.Repr(), key)
			}
			return c.ReplayCtx(ctx, out, replaycache.StoreOperation)
		},
	}
}

func verify(cmd *cobra.Command, c *replaycache.Cache, key string, v replaycache.Value) error {
	got, err := getValue(cmd, c, key, v.Kind())
	if err != nil {
		return err
	}
	if !bytes.Equal(got.Encode(), v.Encode()) || got.Kind() != v.Kind() {
		return fmt.Errorf("round trip of %s returned %s", v.Repr(), got.Repr())
	}
	return nil
}

func getValue(cmd *cobra.Command, c *replaycache.Cache, key string, kind replaycache.Kind) (replaycache.Value, error) {
	ctx := cmd.Context()
	switch kind {
	case replaycache.KindBytes:
		body, ok, err := c.GetCtx(ctx, key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, replaycache.ErrNotFound
		}
		return replaycache.Bytes(body), nil
	case replaycache.KindInteger:
		n, err := c.GetIntCtx(ctx, key)
		return replaycache.Integer(n), err
	case replaycache.KindFloat:
		f, err := c.GetFloatCtx(ctx, key)
		return replaycache.Float(f), err
	default:
		s, err := c.GetStrCtx(ctx, key)
		return replaycache.Text(s), err
	}
}

func newStoreCmd(opts *options) *cobra.Command {
	var kindName string
	cmd := &cobra.Command{
		Use:   "store VALUE",
		Short: "Store a value under a generated key and print the key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(kindName)
			if err != nil {
				return err
			}
			v, err := replaycache.ParseValue(kind, args[0])
			if err != nil {
				return err
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			c, err := s.cache(cmd.Context(), replaycache.WithoutFlush())
			if err != nil {
				return err
			}
			key, err := c.StoreCtx(cmd.Context(), v)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
	cmd.Flags().StringVar(&kindName, "type", "text", "value type: text, bytes, int, float")
	return cmd
}

func newGetCmd(opts *options) *cobra.Command {
	var kindName string
	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Read a value and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := parseKind(kindName)
			if err != nil {
				return err
			}
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			c, err := s.cache(cmd.Context(), replaycache.WithoutFlush())
			if err != nil {
				return err
			}
			v, err := getValue(cmd, c, args[0], kind)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), v.Repr())
			return nil
		},
	}
	cmd.Flags().StringVar(&kindName, "as", "text", "decode as: text, bytes, int, float")
	return cmd
}

func newReplayCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "replay [NAME]",
		Short: "Print the recorded calls of an operation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			c, err := s.cache(cmd.Context(), replaycache.WithoutFlush())
			if err != nil {
				return err
			}
			return c.ReplayCtx(cmd.Context(), cmd.OutOrStdout(), operationName(args))
		},
	}
}

func newCallsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "calls [NAME]",
		Short: "Print how many times an operation was called",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			c, err := s.cache(cmd.Context(), replaycache.WithoutFlush())
			if err != nil {
				return err
			}
			n, err := c.CallsCtx(cmd.Context(), operationName(args))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatInt(n, 10))
			return nil
		},
	}
}

func newPageCmd(opts *options) *cobra.Command {
	var ttl = pagecache.DefaultTTL
	cmd := &cobra.Command{
		Use:   "page URL",
		Short: "Fetch a page through the page cache and print its body",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			pages := pagecache.New(s.store, pagecache.WithTTL(ttl))
			body, err := pages.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			count, err := pages.Count(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			s.logger.Info("page served", "url", args[0], "requests", count)
			fmt.Fprint(cmd.OutOrStdout(), body)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", pagecache.DefaultTTL, "how long fetched pages stay cached")
	return cmd
}

func newFlushCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Remove every key from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd, opts)
			if err != nil {
				return err
			}
			defer s.close()

			c, err := s.cache(cmd.Context(), replaycache.WithoutFlush())
			if err != nil {
				return err
			}
			return c.FlushCtx(cmd.Context())
		},
	}
}

func operationName(args []string) string {
	if len(args) == 1 {
		return args[0]
	}
	return replaycache.StoreOperation
}
