package config

import (
	"fmt"
	"strconv"

	"github.com/manifoldco/promptui"
)

// RunWizard runs an interactive configuration wizard and returns the
// resulting Config. It also saves the config to the given path.
func RunWizard(path string) (*Config, error) {
	fmt.Println("Welcome to OpenXiino! Let's configure your proxy.")
	fmt.Println()

	cfg := DefaultConfig()

	hostPrompt := promptui.Prompt{
		Label:   "Listen address",
		Default: cfg.Server.Host,
	}
	host, err := hostPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("listen address: %w", err)
	}
	cfg.Server.Host = host

	portPrompt := promptui.Prompt{
		Label:   "Listen port",
		Default: strconv.Itoa(cfg.Server.Port),
		Validate: func(s string) error {
			p, err := strconv.Atoi(s)
			if err != nil || p < 1 || p > 65535 {
				return fmt.Errorf("port must be 1-65535")
			}
			return nil
		},
	}
	portStr, err := portPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("listen port: %w", err)
	}
	cfg.Server.Port, _ = strconv.Atoi(portStr)

	ditherPrompt := promptui.Select{
		Label: "Image dithering priority",
		Items: []string{
			"quality     — Floyd-Steinberg in LAB, Lanczos resize",
			"performance — ordered Bayer, bilinear resize",
		},
	}
	ditherIdx, _, err := ditherPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("dither priority: %w", err)
	}
	if ditherIdx == 1 {
		cfg.Image.DitherPriority = DitherPerformance
	}

	upgradePrompt := promptui.Select{
		Label: "Attempt opportunistic HTTPS upgrade for http:// URLs",
		Items: []string{"yes", "no"},
	}
	upgradeIdx, _, err := upgradePrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("https upgrade: %w", err)
	}
	cfg.Security.AttemptHTTPSUpgrade = upgradeIdx == 0

	proxyPrompt := promptui.Prompt{
		Label:   "SOCKS5 proxy for upstream fetches (empty for direct)",
		Default: "",
	}
	socks, err := proxyPrompt.Run()
	if err != nil {
		return nil, fmt.Errorf("socks proxy: %w", err)
	}
	cfg.HTTP.SocksProxy = socks

	if err := cfg.Save(path); err != nil {
		return nil, err
	}
	fmt.Printf("\nConfiguration saved to %s\n", path)
	return cfg, nil
}
