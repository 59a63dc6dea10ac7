package config

import (
	"fmt"

	"github.com/spf13/viper"

	"fx2lafw/internal/driver/device"
)

// profileOverride is one [[profile]] table entry of an optional
// fx2lafw.toml file: a firmware path or required-string patch applied
// to the DefaultProfiles entry matching VendorID/ProductID, per
// spec.md §6.4's config-table lookup. Fields left zero/empty in the
// TOML leave the corresponding device.Profile field untouched.
type profileOverride struct {
	VendorID             uint16 `mapstructure:"vendor_id"`
	ProductID            uint16 `mapstructure:"product_id"`
	FirmwarePath         string `mapstructure:"firmware_path"`
	RequiredManufacturer string `mapstructure:"required_manufacturer"`
	RequiredProduct      string `mapstructure:"required_product"`
}

// LoadProfileOverrides reads an optional fx2lafw.toml (looked up in
// the current directory, then /etc/fx2lafw) and patches matching
// entries of profiles in place. It is not an error for the file to be
// absent; LoadProfileOverrides is a no-op in that case.
//
// Grounded on jbrzusto-ogdar/config.go's loadConfig: a private *viper.Viper
// instance (rather than viper's package-level singleton, since this
// package has no need to be read elsewhere) pointed at a named TOML
// file across a short search path, unmarshalled into a typed slice.
func LoadProfileOverrides(profiles []device.Profile) error {
	v := viper.New()
	v.SetConfigName("fx2lafw")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/fx2lafw")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("config: reading fx2lafw.toml: %w", err)
	}

	var overrides []profileOverride
	if err := v.UnmarshalKey("profile", &overrides); err != nil {
		return fmt.Errorf("config: parsing fx2lafw.toml profile table: %w", err)
	}

	for _, o := range overrides {
		applyOverride(profiles, o)
	}
	return nil
}

func applyOverride(profiles []device.Profile, o profileOverride) {
	for i := range profiles {
		p := &profiles[i]
		if p.VendorID != o.VendorID || p.ProductID != o.ProductID {
			continue
		}
		if o.FirmwarePath != "" {
			p.FirmwarePath = o.FirmwarePath
		}
		if o.RequiredManufacturer != "" {
			p.RequiredManufacturer = o.RequiredManufacturer
		}
		if o.RequiredProduct != "" {
			p.RequiredProduct = o.RequiredProduct
		}
	}
}
