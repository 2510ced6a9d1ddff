package domain

// CoeffEpsilon is the magnitude below which cut coefficients are not stored.
const CoeffEpsilon = 1e-9

// TerminateSentinel is the iteration number carried by a Dn message that ends the main phase.
const TerminateSentinel = -1
