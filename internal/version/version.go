package version

// Current is the released version of the enhancer, without a "v" prefix.
const Current = "0.1.0"
