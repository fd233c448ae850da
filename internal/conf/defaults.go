// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "Babelia-Go")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "babelia.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)
	viper.SetDefault("main.log.rotationday", "Sunday")

	viper.SetDefault("babelia.baseurl", "https://babelia.libraryofbabel.info")
	viper.SetDefault("babelia.ratelimit", 2.0)
	viper.SetDefault("babelia.timeout", 10)
	viper.SetDefault("babelia.sampling", "random")
	viper.SetDefault("babelia.useragent", "babelia-go/1.0")

	viper.SetDefault("analyzer.modelpath", "")
	viper.SetDefault("analyzer.vocabpath", "")
	viper.SetDefault("analyzer.threshold", 0.75)
	viper.SetDefault("analyzer.anomalythreshold", 0.85)
	viper.SetDefault("analyzer.edgethreshold", 30.0)
	viper.SetDefault("analyzer.threads", 0)
	viper.SetDefault("analyzer.usexnnpack", false)
	viper.SetDefault("analyzer.debug", false)

	viper.SetDefault("search.maximages", 0)
	viper.SetDefault("search.progressinterval", 100)
	viper.SetDefault("search.fetchretrydelay", 5)
	viper.SetDefault("search.errorbackoff", 2)

	viper.SetDefault("output.dbpath", "babelia_discoveries.db")
	viper.SetDefault("output.imagedir", "discoveries/")

	viper.SetDefault("alert.enabled", false)
	viper.SetDefault("alert.smtphost", "smtp.gmail.com")
	viper.SetDefault("alert.smtpport", 587)
	viper.SetDefault("alert.username", "")
	viper.SetDefault("alert.password", "")
	viper.SetDefault("alert.from", "")
	viper.SetDefault("alert.to", "")
	viper.SetDefault("alert.extraurls", []string{})

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "babelia/discoveries")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")
}
