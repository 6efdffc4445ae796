// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/ColonelBlimp/keydecoder/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "keydecoder",
	Short: "Adaptive Morse decoder for a hand-operated straight key",
	Long: `A straight-key Morse decoder. It samples a key contact (serial line,
keyed audio tone or a built-in practice script), adapts its timing to the
operator and shows the decoded text on a character display.`,
	SilenceUsage: true,
	RunE:         runDecode,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().StringP("source", "s", config.SourceSerial, "key source: serial, audio or script")
	rootCmd.PersistentFlags().StringP("port", "p", "/dev/ttyUSB0", "serial port of the key interface")
	rootCmd.PersistentFlags().IntP("device", "d", -1, "audio capture device index (-1 for default)")
	rootCmd.PersistentFlags().Float64P("frequency", "f", 600, "keyed tone frequency in Hz")
	rootCmd.PersistentFlags().BoolP("headless", "H", false, "print decoded text to stdout without the display")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	// Bind flags to viper
	bindFlag("source", "source")
	bindFlag("serial_port", "port")
	bindFlag("device_index", "device")
	bindFlag("tone_frequency", "frequency")
	bindFlag("headless", "headless")
	bindFlag("debug", "debug")

	rootCmd.AddCommand(decodeCmd, devicesCmd, tableCmd)
}

func bindFlag(key, flag string) {
	if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

func initConfig() {
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}
