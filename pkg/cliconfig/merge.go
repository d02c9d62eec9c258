package cliconfig

// MergeConfig merges source into target and records sourceType for every
// applied key. Non-zero values are applied; zero values and false only when
// source.SetFields names the key.
func MergeConfig(target, source *CLIConfig, sourceType string) {
	if source == nil {
		return
	}
	if target.Sources == nil {
		target.Sources = make(map[string]string)
	}

	set := func(key string, nonZero bool) bool {
		if nonZero || source.SetFields[key] {
			target.Sources[key] = sourceType
			return true
		}
		return false
	}

	if set("dataDir", source.DataDir != "") {
		target.DataDir = source.DataDir
	}
	if set("backend", source.Backend != "") {
		target.Backend = source.Backend
	}
	if set("database", source.Database != "") {
		target.Database = source.Database
	}
	if set("listenAddr", source.ListenAddr != "") {
		target.ListenAddr = source.ListenAddr
	}
	if set("workers", source.Workers != 0) {
		target.Workers = source.Workers
	}
	if set("syncTimeout", source.SyncTimeout != 0) {
		target.SyncTimeout = source.SyncTimeout
	}
	if set("probeTimeout", source.ProbeTimeout != 0) {
		target.ProbeTimeout = source.ProbeTimeout
	}
	if set("logLevel", source.LogLevel != "") {
		target.LogLevel = source.LogLevel
	}
	if set("logFormat", source.LogFormat != "") {
		target.LogFormat = source.LogFormat
	}
	if set("logFile", source.LogFile != "") {
		target.LogFile = source.LogFile
	}
	if set("json", source.JSON) {
		target.JSON = source.JSON
	}
}
