package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/FooledKiwi/placemap/internal/geo"
	"github.com/FooledKiwi/placemap/internal/geocoding"
	"github.com/FooledKiwi/placemap/internal/logging"
	"github.com/FooledKiwi/placemap/internal/routing"
	"github.com/FooledKiwi/placemap/internal/service"
	"github.com/FooledKiwi/placemap/internal/storage"
)

type seeder interface {
	SeedDefaults(ctx context.Context) (int, error)
}

type placeRouter interface {
	RouteToPlace(ctx context.Context, origin geo.Coordinate, placeID int64) (*service.PlaceRoute, error)
}

// backend is everything a subcommand may need.
type backend struct {
	places     storage.PlacesRepository
	seeder     seeder
	geocoder   geocoding.Geocoder
	directions placeRouter
	close      func()
}

type openFunc func(ctx context.Context) (*backend, error)

// newRootCmd builds the command tree. open is called lazily by the
// subcommands that need it.
func newRootCmd(open openFunc) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "placectl",
		Short:         "Manage places and query geocoding and routing providers",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Setup(logLevel, "console")
		},
	}
	root.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "warn", "log level (debug, info, warn, error)")

	withBackend := func(run func(cmd *cobra.Command, args []string, b *backend) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			b, err := open(cmd.Context())
			if err != nil {
				return err
			}
			if b.close != nil {
				defer b.close()
			}
			return run(cmd, args, b)
		}
	}

	root.AddCommand(
		newListCmd(withBackend),
		newAddCmd(withBackend),
		newSeedCmd(withBackend),
		newGeocodeCmd(withBackend),
		newReverseCmd(withBackend),
		newRouteCmd(withBackend),
	)
	return root
}

type wrapFunc func(run func(cmd *cobra.Command, args []string, b *backend) error) func(*cobra.Command, []string) error

func newListCmd(with wrapFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored places",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, _ []string, b *backend) error {
			places, err := b.places.List(cmd.Context())
			if err != nil {
				return err
			}
			printPlaces(cmd.OutOrStdout(), places)
			return nil
		}),
	}
}

func newAddCmd(with wrapFunc) *cobra.Command {
	var address, category, image string

	cmd := &cobra.Command{
		Use:   "add NAME",
		Short: "Store a new place",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, args []string, b *backend) error {
			p := &storage.Place{Name: args[0]}
			if cmd.Flags().Changed("address") {
				p.Address = &address
			}
			if cmd.Flags().Changed("category") {
				p.Category = &category
			}
			if image != "" {
				data, err := os.ReadFile(image)
				if err != nil {
					return fmt.Errorf("read image: %w", err)
				}
				p.Image = data
			}

			if err := b.places.Save(cmd.Context(), p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved place %d (%s)\n", p.ID, p.Name)
			return nil
		}),
	}
	cmd.Flags().StringVarP(&address, "address", "a", "", "street address")
	cmd.Flags().StringVarP(&category, "category", "c", "", "category, e.g. Restaurant")
	cmd.Flags().StringVarP(&image, "image", "i", "", "path to a picture")
	return cmd
}

func newSeedCmd(with wrapFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Store the demo catalogue (appends on every run)",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, _ []string, b *backend) error {
			n, err := b.seeder.SeedDefaults(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "saved %d places\n", n)
			return err
		}),
	}
}

func newGeocodeCmd(with wrapFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "geocode ADDRESS...",
		Short: "Resolve an address to coordinates",
		Args:  cobra.MinimumNArgs(1),
		RunE: with(func(cmd *cobra.Command, args []string, b *backend) error {
			res, err := b.geocoder.Geocode(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", res.Coordinate, res.DisplayName)
			return nil
		}),
	}
}

func newReverseCmd(with wrapFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "reverse LAT LON",
		Short: "Resolve coordinates to an address",
		Args:  cobra.ExactArgs(2),
		RunE: with(func(cmd *cobra.Command, args []string, b *backend) error {
			at, err := parseCoordinate(args[0], args[1])
			if err != nil {
				return err
			}
			res, err := b.geocoder.Reverse(cmd.Context(), at)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.DisplayName)
			return nil
		}),
	}
}

func newRouteCmd(with wrapFunc) *cobra.Command {
	var lat, lon float64

	cmd := &cobra.Command{
		Use:   "route PLACE_ID --lat LAT --lon LON",
		Short: "Compute driving routes from a point to a stored place",
		Args:  cobra.ExactArgs(1),
		RunE: with(func(cmd *cobra.Command, args []string, b *backend) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid place id %q", args[0])
			}
			origin := geo.Coordinate{Lat: lat, Lon: lon}
			if !origin.Valid() {
				return fmt.Errorf("origin %s out of range", origin)
			}

			res, err := b.directions.RouteToPlace(cmd.Context(), origin, id)
			if err != nil {
				return err
			}
			printRoutes(cmd.OutOrStdout(), res)
			return nil
		}),
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "origin latitude")
	cmd.Flags().Float64Var(&lon, "lon", 0, "origin longitude")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

func parseCoordinate(latRaw, lonRaw string) (geo.Coordinate, error) {
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("invalid latitude %q", latRaw)
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("invalid longitude %q", lonRaw)
	}
	c := geo.Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return geo.Coordinate{}, fmt.Errorf("coordinate %s out of range", c)
	}
	return c, nil
}

func printPlaces(w io.Writer, places []storage.Place) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tADDRESS\tCATEGORY\tIMAGE")
	for _, p := range places {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%t\n", p.ID, p.Name, deref(p.Address), deref(p.Category), p.HasImage)
	}
	tw.Flush() //nolint:errcheck
}

func printRoutes(w io.Writer, res *service.PlaceRoute) {
	fmt.Fprintf(w, "%s -> %s\n", res.Place.Name, res.Destination)
	if len(res.Routes) == 0 {
		fmt.Fprintln(w, "no routes found")
		return
	}
	for i, r := range res.Routes {
		fmt.Fprintf(w, "route %d: %s km, %s min\n", i+1, routing.FormatDistanceKm(r.DistanceM), routing.FormatMinutes(r.DurationS))
	}
	fmt.Fprintln(w, res.Summary)
	if res.IsFallback {
		fmt.Fprintln(w, "(estimate: straight line)")
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
