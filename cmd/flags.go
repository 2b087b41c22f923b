package cmd

import (
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func tablesFromConfig(key string) []string {
	return normalizeTables(viper.GetStringSlice(key))
}

func normalizeTables(values []string) []string {
	tables := lo.FilterMap(values, func(v string, _ int) (string, bool) {
		name := strings.ToLower(strings.TrimSpace(v))
		return name, name != ""
	})
	if len(tables) == 0 {
		return nil
	}
	return lo.Uniq(tables)
}

func bindFlagToViper(key string, flag *pflag.Flag) {
	if flag == nil {
		return
	}
	cobra.CheckErr(viper.BindPFlag(key, flag))
}
