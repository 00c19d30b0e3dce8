// Package options contains the program options.
package options

// Commands of the program.
const (
	Info     = "info"
	Extract  = "extract"
	Scan     = "scan"
	Find     = "find"
	Best     = "best"
	Inject   = "inject"
	Preview  = "preview"
	Regions  = "regions"
	Similar  = "similar"
	Trace    = "trace"
	Navigate = "navigate"
	Cache    = "cache"
)

// Commands lists all commands in the order they are shown in the usage.
var Commands = []string{Info, Extract, Scan, Find, Best, Inject, Preview, Regions, Similar, Trace, Navigate, Cache}

// Positional contains positional arguments.
type Positional struct {
	Command string `arg:"positional" usage:"command to execute"`
	File    string `arg:"positional" usage:"ROM file"`
}

// Parameters contains file path options.
type Parameters struct {
	Input       string `flag:"i" usage:"input ROM file"`
	Output      string `flag:"o" usage:"output file or base name (default: <rom>_<offset>)"`
	Offset      string `flag:"offset" usage:"ROM offset, decimal or 0x prefixed hex"`
	Sprite      string `flag:"sprite" usage:"sprite PNG to inject or sprite name to extract"`
	Metadata    string `flag:"metadata" usage:"metadata file of the extracted sprite"`
	TraceFile   string `flag:"trace" usage:"DMA trace JSON file"`
	CodeDataLog string `flag:"cdl" usage:"Code/Data log file (.cdl)"`
	Config      string `flag:"config" usage:"sprite location config file"`
	EnvFile     string `flag:"env" usage:"settings file" default:".env"`
	Batch       string `flag:"batch" usage:"batch process files matching pattern (e.g. *.sfc)"`
}

// Flags contains behavior options.
type Flags struct {
	Map     string `flag:"map" usage:"ROM mapping: lorom, hirom (default: from header)"`
	Fast    bool   `flag:"fast" usage:"fast compression for injection"`
	Backup  bool   `flag:"backup" usage:"create a backup before injecting" default:"true"`
	NoCache bool   `flag:"nocache" usage:"disable the ROM cache"`
	Clear   bool   `flag:"clear" usage:"clear the caches with the cache command"`
	Debug   bool   `flag:"debug" usage:"enable debug logging"`
	Quiet   bool   `flag:"q" usage:"quiet mode"`
}

// Tuning contains numeric parameters of the commands.
type Tuning struct {
	Start      string  `flag:"start" usage:"scan start offset"`
	End        string  `flag:"end" usage:"scan end offset (default: ROM size)"`
	Step       int     `flag:"step" usage:"scan step in bytes" default:"256"`
	Workers    int     `flag:"workers" usage:"number of scan workers" default:"4"`
	Range      int     `flag:"range" usage:"search range around the offset" default:"4096"`
	Count      int     `flag:"count" usage:"number of previews or results" default:"10"`
	Threshold  float64 `flag:"threshold" usage:"minimum similarity" default:"0.8"`
	MinQuality float64 `flag:"min-quality" usage:"minimum sprite quality of scan results" default:"0"`
}

// Program options of spritepal.
type Program struct {
	Command string

	Parameters
	Flags
	Tuning
}
