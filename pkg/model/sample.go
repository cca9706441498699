package model

// Experiment identifies the assay a sample was produced by. It selects
// which pipeline branch processes the sample.
type Experiment string

const (
	ExperimentWGS     Experiment = "WGS"
	ExperimentWES     Experiment = "WES"
	ExperimentRNASeq  Experiment = "RNA-Seq"
	ExperimentChIPSeq Experiment = "ChIP-Seq"
)

// Experiments lists the recognized experiment types.
var Experiments = []Experiment{
	ExperimentWGS,
	ExperimentWES,
	ExperimentRNASeq,
	ExperimentChIPSeq,
}

// IsValid reports whether the experiment is one of the recognized types.
func (e Experiment) IsValid() bool {
	for _, v := range Experiments {
		if e == v {
			return true
		}
	}
	return false
}

// Strandedness values for RNA-Seq libraries. Empty means not provided;
// the value is then inferred before quantification.
const (
	StrandednessReverse    = "Stranded-Reverse"
	StrandednessForward    = "Stranded-Forward"
	StrandednessUnstranded = "Unstranded"
)

// StrandednessValues lists the legal non-empty strandedness values.
var StrandednessValues = []string{
	StrandednessReverse,
	StrandednessForward,
	StrandednessUnstranded,
}

// Quality encoding values for FASTQ inputs. Empty means not provided;
// the value is then inferred from the reads. The upstream service
// historically spelled the second value "illunima1.3"; that misspelling
// is not accepted here.
const (
	EncodingSanger     = "sanger"
	EncodingIllumina13 = "illumina1.3"
)

// EncodingValues lists the legal non-empty quality encoding values.
var EncodingValues = []string{
	EncodingSanger,
	EncodingIllumina13,
}

// Pairing describes the read layout of a sequencing sample.
type Pairing string

const (
	PairingSingle Pairing = "single"
	PairingPaired Pairing = "paired"
)

// IsValid reports whether the pairing is a recognized value.
func (p Pairing) IsValid() bool {
	return p == PairingSingle || p == PairingPaired
}

// FileRef points at one input file for a sample.
type FileRef struct {
	// Location is a file:// path or s3:// URI.
	Location string `json:"location"`
	// Kind labels the file role (FASTQ, BAM, GTF).
	Kind string `json:"kind,omitempty"`
}

// Sample is the unit of work a pipeline is invoked against: a named set
// of input files plus the experiment metadata that drives branch
// selection and value inference.
type Sample struct {
	Name       string     `json:"name"`
	Experiment Experiment `json:"experiment"`

	// Files maps pipeline input names to file references.
	Files map[string]FileRef `json:"files,omitempty"`

	// Strandedness is empty when not provided and inferred later.
	Strandedness string `json:"strandedness,omitempty"`

	// Encoding is empty when not provided and inferred later.
	Encoding string `json:"encoding,omitempty"`

	Pairing Pairing `json:"pairing,omitempty"`

	// Scalars holds additional non-file input values by name.
	Scalars map[string]any `json:"scalars,omitempty"`
}

// File looks up a named file input.
func (s *Sample) File(name string) (FileRef, bool) {
	ref, ok := s.Files[name]
	return ref, ok
}

// Inputs flattens the sample into the value map gate expressions and
// command templates are evaluated against. File inputs appear as their
// locations; metadata fields appear under their well-known names.
func (s *Sample) Inputs() map[string]any {
	inputs := make(map[string]any, len(s.Files)+len(s.Scalars)+4)
	for name, ref := range s.Files {
		inputs[name] = ref.Location
	}
	for name, v := range s.Scalars {
		inputs[name] = v
	}
	inputs["experiment"] = string(s.Experiment)
	if s.Strandedness != "" {
		inputs["strandedness"] = s.Strandedness
	}
	if s.Encoding != "" {
		inputs["encoding"] = s.Encoding
	}
	if s.Pairing != "" {
		inputs["pairing"] = string(s.Pairing)
	}
	return inputs
}
