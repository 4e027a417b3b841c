package config

// Args are the command line options. Set options override the file.
type Args struct {
	Config string `arg:"--config" help:"YAML or TOML configuration file"`

	Host     *string `arg:"--host" help:"host the MySQL server runs on"`
	Port     *int    `arg:"-P,--port" help:"MySQL port to use"`
	User     *string `arg:"-u,--user" help:"MySQL user"`
	Password *string `arg:"-p,--password" help:"MySQL password"`

	StartFile     *string `arg:"--start-file" help:"start binlog file to be parsed"`
	StartPosition *uint32 `arg:"--start-position" help:"start position of the start binlog file"`
	StopFile      *string `arg:"--stop-file" help:"stop binlog file to be parsed, defaults to the start file"`
	StopPosition  *uint32 `arg:"--stop-position" help:"stop position, defaults to the end of the stop file"`
	StartTime     *string `arg:"--start-time" help:"start time, format %Y-%m-%d %H:%M:%S"`
	StopTime      *string `arg:"--stop-time" help:"stop time, format %Y-%m-%d %H:%M:%S"`
	StopNever     bool    `arg:"--stop-never" help:"keep following the binlog after the latest file"`

	Databases []string `arg:"-d,--databases" help:"databases to translate"`
	Tables    []string `arg:"-t,--tables" help:"tables to translate"`
	OnlyDML   bool     `arg:"--only-dml" help:"only translate DML, ignore DDL"`
	SQLTypes  []string `arg:"--sql-type" help:"DML types to translate: INSERT, UPDATE, DELETE"`

	NoPrimaryKey bool   `arg:"-K,--no-primary-key" help:"generate INSERT statements without primary key columns"`
	Flashback    bool   `arg:"-B,--flashback" help:"generate rollback statements"`
	JSON         bool   `arg:"--json" help:"render JSON column values as JSON text"`
	Transform    string `arg:"--transform" help:"JavaScript file run on every statement"`

	OutputFile string `arg:"--output-file" help:"append statements to this file as well as stdout"`
	Debug      bool   `arg:"--debug" help:"print the effective configuration and exit"`
}

func (Args) Description() string {
	return "binlog2sql parses the MySQL binlog into redo or flashback SQL"
}

// Apply overrides the config with the options given on the command line
func (a *Args) Apply(c *Config) {
	setString(&c.MySQL.Host, a.Host)
	if a.Port != nil {
		c.MySQL.Port = *a.Port
	}
	setString(&c.MySQL.User, a.User)
	setString(&c.MySQL.Password, a.Password)

	setString(&c.Binlog.StartFile, a.StartFile)
	if a.StartPosition != nil {
		c.Binlog.StartPosition = *a.StartPosition
	}
	setString(&c.Binlog.StopFile, a.StopFile)
	if a.StopPosition != nil {
		c.Binlog.StopPosition = *a.StopPosition
	}
	setString(&c.Binlog.StartTime, a.StartTime)
	setString(&c.Binlog.StopTime, a.StopTime)
	c.Binlog.StopNever = c.Binlog.StopNever || a.StopNever

	if len(a.Databases) > 0 {
		c.Filter.Databases = a.Databases
	}
	if len(a.Tables) > 0 {
		c.Filter.Tables = a.Tables
	}
	c.Filter.OnlyDML = c.Filter.OnlyDML || a.OnlyDML
	if len(a.SQLTypes) > 0 {
		c.Filter.SQLTypes = a.SQLTypes
	}

	c.Mode.NoPrimaryKey = c.Mode.NoPrimaryKey || a.NoPrimaryKey
	c.Mode.Flashback = c.Mode.Flashback || a.Flashback
	c.Mode.JSON = c.Mode.JSON || a.JSON
	if a.Transform != "" {
		c.Mode.Transform = a.Transform
	}
	if a.OutputFile != "" {
		c.Output.File = a.OutputFile
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
