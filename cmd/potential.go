package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	sim "github.com/streamsim/streamsim/sim"
	"github.com/streamsim/streamsim/sim/potential"
)

func newPotentialCmd() *cobra.Command {
	var world worldFlags
	cmd := &cobra.Command{
		Use:   "potential",
		Short: "Print the potential field the first source's people follow",
		Run: func(cmd *cobra.Command, args []string) {
			if err := printPotential(cmd.OutOrStdout(), &world, cmd.Flags().Changed("seed")); err != nil {
				logrus.Fatalf("%v", err)
			}
		},
	}
	world.register(cmd, 0)
	return cmd
}

// printPotential initialises the movement strategy of the first source in
// row-major order and writes its field, one grid row per line.
func printPotential(out io.Writer, world *worldFlags, seedSet bool) error {
	w, err := world.load(seedSet)
	if err != nil {
		return err
	}
	st := w.sim.StartState()
	sources := st.LocationsOf(sim.TypeSource)
	if len(sources) == 0 {
		return fmt.Errorf("world %s has no source", world.path)
	}
	src := st.CellOccupant(sources[0]).(*sim.Source)
	movement := src.Config().Movement

	work := st.Clone()
	movement.Init(work, sim.NewPartitionedRNG(w.seed).ForSubsystem(sim.SubsystemMovement))
	field, err := movement.CalculatePotential(work)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "# %s potential from source %s\n", movement.Name(), sources[0])
	return writeField(out, field)
}

func writeField(out io.Writer, field potential.Field) error {
	var b strings.Builder
	for r := range field {
		b.Reset()
		for c, v := range field[r] {
			if c > 0 {
				b.WriteByte(' ')
			}
			if !field.Reachable(potential.Cell{Row: r, Column: c}) {
				b.WriteString("      -")
				continue
			}
			fmt.Fprintf(&b, "%7.2f", v)
		}
		b.WriteByte('\n')
		if _, err := io.WriteString(out, b.String()); err != nil {
			return err
		}
	}
	return nil
}
