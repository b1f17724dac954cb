package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/camden-git/attendancesys/database"
	"github.com/camden-git/attendancesys/models"
	"github.com/camden-git/attendancesys/repository"
	"github.com/camden-git/attendancesys/services"
)

var personCmd = &cobra.Command{
	Use:   "person",
	Short: "Manage registered persons",
}

var personListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered persons",
	Long: `List registered persons. --search matches the ID or the name, ignoring
case and accents.

Examples:
  attendancesys person list
  attendancesys person list --search jose`,
	Args: cobra.NoArgs,
	RunE: runPersonList,
}

var personShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a person and their attendance statistics",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonShow,
}

var personUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update a person's details",
	Long: `Update a person's details. Only the flags that are given change.

Examples:
  attendancesys person update E001 --department Sales
  attendancesys person update E001 --shift-start 08:30 --shift-end 17:30`,
	Args: cobra.ExactArgs(1),
	RunE: runPersonUpdate,
}

var personDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a person, their face encoding and attendance history",
	Args:  cobra.ExactArgs(1),
	RunE:  runPersonDelete,
}

func init() {
	rootCmd.AddCommand(personCmd)
	personCmd.AddCommand(personListCmd, personShowCmd, personUpdateCmd, personDeleteCmd)

	personListCmd.Flags().String("search", "", "Filter by ID or name")

	personUpdateCmd.Flags().String("name", "", "Full name")
	personUpdateCmd.Flags().String("email", "", "Email address (empty clears it)")
	personUpdateCmd.Flags().String("department", "", "Department")
	personUpdateCmd.Flags().String("shift-start", "", "Shift start (HH:MM)")
	personUpdateCmd.Flags().String("shift-end", "", "Shift end (HH:MM)")

	personDeleteCmd.Flags().Bool("yes", false, "Do not ask for confirmation")
}

func runPersonList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	var persons []models.Person
	if q := mustGetString(cmd, "search"); q != "" {
		persons, err = a.persons.Search(q)
	} else {
		persons, err = a.persons.ListAll()
	}
	if err != nil {
		return err
	}
	if len(persons) == 0 {
		fmt.Println("No persons registered")
		return nil
	}

	registered := make(map[string]bool, a.faces.Count())
	for _, id := range a.faces.IDs() {
		registered[id] = true
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDEPARTMENT\tSHIFT\tREGISTERED\tFACE")
	for _, p := range persons {
		face := red.Sprint("missing")
		if registered[p.PersonID] {
			face = green.Sprint("ok")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s - %s\t%s\t%s\n",
			p.PersonID, p.Name, dash(p.Department), p.ShiftStart, p.ShiftEnd, services.RegisteredAt(p), face)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\n%d person(s)\n", len(persons))
	return nil
}

func runPersonShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.persons.GetByID(args[0])
	if err != nil {
		return err
	}
	stats, _, err := database.GetPersonStats(context.Background(), a.sqlDB, p.PersonID)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold)
	yellow := color.New(color.FgYellow)
	fmt.Printf("%s (%s)\n", bold.Sprint(p.Name), p.PersonID)
	fmt.Printf("  Email:       %s\n", dash(p.Email))
	fmt.Printf("  Department:  %s\n", dash(p.Department))
	fmt.Printf("  Shift:       %s\n", stats.Shift)
	fmt.Printf("  Registered:  %s\n", services.RegisteredAt(*p))
	fmt.Printf("  Days:        %d\n", stats.TotalDays)
	fmt.Printf("  Late:        %s\n", yellow.Sprint(stats.LateArrivals))
	fmt.Printf("  Left early:  %s\n", yellow.Sprint(stats.EarlyLeaves))
	fmt.Printf("  Avg hours:   %.1f\n", stats.AverageHours)
	return nil
}

func runPersonUpdate(cmd *cobra.Command, args []string) error {
	upd := repository.PersonUpdate{
		Name:       optionalString(cmd, "name"),
		Email:      optionalString(cmd, "email"),
		Department: optionalString(cmd, "department"),
		ShiftStart: optionalString(cmd, "shift-start"),
		ShiftEnd:   optionalString(cmd, "shift-end"),
	}
	if upd == (repository.PersonUpdate{}) {
		return errors.New("nothing to update, pass at least one flag")
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.registration(nil).Update(args[0], upd)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s (%s)\n", color.New(color.FgGreen).Sprint("Updated"), p.Name, p.PersonID)
	return nil
}

func runPersonDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.persons.GetByID(id)
	if err != nil {
		return err
	}
	if !mustGetBool(cmd, "yes") && !confirm(fmt.Sprintf("Delete %s (%s) and all of their attendance records?", p.Name, p.PersonID)) {
		fmt.Println("Aborted")
		return nil
	}

	if err := a.registration(nil).Delete(id); err != nil {
		return err
	}
	fmt.Printf("%s %s (%s)\n", color.New(color.FgRed).Sprint("Deleted"), p.Name, p.PersonID)
	return nil
}

func confirm(question string) bool {
	fmt.Printf("%s [y/N] ", question)
	line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
