package config

const (
	EnvPrefix = "MEDFARMA"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv                 = "MEDFARMA_APP_ENV"
	EnvPort                   = "MEDFARMA_APP_PORT"
	EnvDBDSN                  = "MEDFARMA_DB_DSN"
	EnvDBHost                 = "MEDFARMA_DB_HOST"
	EnvDBUser                 = "MEDFARMA_DB_USER"
	EnvDBName                 = "MEDFARMA_DB_NAME"
	EnvDBPassword             = "MEDFARMA_DB_PASSWORD"
	EnvRedisURL               = "MEDFARMA_REDIS_URL"
	EnvJWTSecret              = "MEDFARMA_JWT_SECRET"
	EnvJWTIssuer              = "MEDFARMA_JWT_ISSUER"
	EnvJWTExpMins             = "MEDFARMA_JWT_EXPIRATION_MINUTES"
	EnvRefreshTokenTTLMinutes = "MEDFARMA_REFRESH_TOKEN_TTL_MINUTES"
	EnvAssistantMaxProducts   = "MEDFARMA_ASSISTANT_MAX_CONTEXT_PRODUCTS"
	EnvAssistantMaxRetries    = "MEDFARMA_ASSISTANT_MAX_RETRIES"
	EnvGeminiAPIKey           = "MEDFARMA_GEMINI_API_KEY"
	EnvGCPProjectID           = "MEDFARMA_GCP_PROJECT_ID"
	EnvSalesTaxRate           = "MEDFARMA_SALES_TAX_RATE"
	EnvSalesCommissionRate    = "MEDFARMA_SALES_COMMISSION_RATE"
	EnvSalesTimezone          = "MEDFARMA_SALES_TIMEZONE"
)
