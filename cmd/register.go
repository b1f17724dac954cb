package cmd

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/camden-git/attendancesys/media"
	"github.com/camden-git/attendancesys/models"
	"github.com/camden-git/attendancesys/services"
)

var registerCmd = &cobra.Command{
	Use:   "register <image>",
	Short: "Register a person from a photo",
	Long: `Register a person from a photo containing exactly one face.

Without --id the ID and name are taken from the file name, e.g.
"E001_Jane_Doe.jpg" registers E001 as "Jane Doe".

Examples:
  attendancesys register photos/E001_Jane_Doe.jpg
  attendancesys register me.jpg --id E042 --name "Sam Lee" --shift-start 08:00 --shift-end 16:30`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

var registerDirCmd = &cobra.Command{
	Use:   "register-dir <directory>",
	Short: "Register every photo in a directory",
	Long: `Register every image in a directory. Each file name must follow the
"<ID>_<Name>.<ext>" convention. Files that fail are listed at the end and
do not stop the run.

Examples:
  attendancesys register-dir ./known_faces`,
	Args: cobra.ExactArgs(1),
	RunE: runRegisterDir,
}

func init() {
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(registerDirCmd)

	registerCmd.Flags().String("id", "", "Person ID (3-20 letters, digits or underscores)")
	registerCmd.Flags().String("name", "", "Full name")
	registerCmd.Flags().String("email", "", "Email address for notifications")
	registerCmd.Flags().String("department", "", "Department")
	registerCmd.Flags().String("shift-start", models.DefaultShiftStart, "Shift start (HH:MM)")
	registerCmd.Flags().String("shift-end", models.DefaultShiftEnd, "Shift end (HH:MM)")
}

func runRegister(cmd *cobra.Command, args []string) error {
	path := args[0]
	req := services.RegisterRequest{
		PersonID:   mustGetString(cmd, "id"),
		Name:       mustGetString(cmd, "name"),
		Email:      mustGetString(cmd, "email"),
		Department: mustGetString(cmd, "department"),
		ShiftStart: mustGetString(cmd, "shift-start"),
		ShiftEnd:   mustGetString(cmd, "shift-end"),
	}
	if req.PersonID == "" {
		id, name := media.PersonIDFromFilename(path)
		req.PersonID = id
		if req.Name == "" {
			req.Name = name
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	detector, err := a.newDetector()
	if err != nil {
		return fmt.Errorf("failed to load face models: %w", err)
	}
	defer detector.Close()

	person, err := a.registration(detector).Register(context.Background(), req, data)
	if err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}

	green := color.New(color.FgGreen)
	fmt.Printf("%s %s (%s), shift %s - %s\n",
		green.Sprint("Registered"), person.Name, person.PersonID, person.ShiftStart, person.ShiftEnd)
	return nil
}

func runRegisterDir(cmd *cobra.Command, args []string) error {
	dir := args[0]
	files, err := services.RegistrationImages(dir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No images found in %s\n", dir)
		return nil
	}

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	detector, err := a.newDetector()
	if err != nil {
		return fmt.Errorf("failed to load face models: %w", err)
	}
	defer detector.Close()

	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetDescription("Registering"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	res, err := a.registration(detector).RegisterDir(context.Background(), dir, func(string, error) {
		_ = bar.Add(1)
	})
	_ = bar.Finish()
	fmt.Println()
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	fmt.Printf("%s %d, %s %d\n",
		green.Sprint("Registered:"), len(res.Registered),
		red.Sprint("Failed:"), len(res.Failed))

	failed := make([]string, 0, len(res.Failed))
	for file := range res.Failed {
		failed = append(failed, file)
	}
	sort.Strings(failed)
	for _, file := range failed {
		fmt.Printf("  %s %s: %v\n", red.Sprint("x"), file, res.Failed[file])
	}
	return nil
}
