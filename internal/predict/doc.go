// Package predict turns per-component sensor features into failure
// probabilities.
//
// Predictor is the opaque model interface. Registry maps component names to
// predictors and returns ErrNoPredictor for unknown components.
// DeviationModel is a fixed-coefficient model over the healthy operating
// profile of each sensor; DefaultRegistry wires one up for engine,
// transmission, brakes, battery and electrical.
package predict
