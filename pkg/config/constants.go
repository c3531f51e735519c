package config

const (
	EnvPrefix = "artkey"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "ARTKEY_DB_DSN"
	EnvDBHost = "ARTKEY_DB_HOST"
	EnvDBUser = "ARTKEY_DB_USER"
	EnvDBName = "ARTKEY_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
