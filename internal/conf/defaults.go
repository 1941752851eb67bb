// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "Mismatch Finder")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/mismatch-finder.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.readtimeout", 30*time.Second)
	viper.SetDefault("server.writetimeout", 60*time.Second)

	viper.SetDefault("database.sqlite.enabled", true)
	viper.SetDefault("database.sqlite.path", "mismatch-finder.db")
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "mismatch-finder")
	viper.SetDefault("database.mysql.password", "")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")
	viper.SetDefault("database.mysql.database", "mismatch_finder")

	viper.SetDefault("wikidata.baseurl", "https://www.wikidata.org/w/api.php")
	viper.SetDefault("wikidata.useragent", "MismatchFinder/1.0")
	viper.SetDefault("wikidata.timeout", 10*time.Second)
	viper.SetDefault("wikidata.cachettl", 5*time.Minute)
	viper.SetDefault("wikidata.requestspersec", 10.0)
	viper.SetDefault("wikidata.chunksize", 50)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("mismatches.maxqueryids", 600)
	viper.SetDefault("mismatches.language", "en")
}
